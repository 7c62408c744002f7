package source

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// HTTPReader reads include references over HTTP(S).
type HTTPReader struct {
	client *http.Client
}

// NewHTTPReader returns a new [HTTPReader].
func NewHTTPReader() *HTTPReader {
	return &HTTPReader{
		client: &http.Client{Timeout: readTimeout},
	}
}

// Supports reports whether ref is a http:// or https:// URL.
func (r *HTTPReader) Supports(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Read fetches ref with a GET request.
func (r *HTTPReader) Read(ref string, ctx *Context) (ReadResult, error) {
	if result, ok := ctx.Cache.Get(ref); ok {
		return result, nil
	}

	response, err := r.client.Get(ref)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: GET %s: %v", ErrRead, ref, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return ReadResult{}, fmt.Errorf("%w: GET %s returned %s", ErrRead, ref, response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: reading body of %s: %v", ErrRead, ref, err)
	}

	result := ReadResult{Text: string(body)}
	ctx.Cache.Put(ref, result)
	return result, nil
}

// ParsePath derives location metadata from a URL.
func (r *HTTPReader) ParsePath(ref string) PathMeta {
	parsed, err := url.Parse(ref)
	if err != nil {
		return PathMeta{File: ref}
	}

	return PathMeta{
		File: path.Base(parsed.Path),
		Path: parsed.Scheme + "://" + parsed.Host + path.Dir(parsed.Path),
	}
}
