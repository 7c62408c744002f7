package source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// BitbucketServerReader reads files from a self-hosted Bitbucket Server
// instance via its REST API.
//
// References take the form `bitbucket-server:project/repo/path[@ref]`, the
// server address comes from the configured credentials.
type BitbucketServerReader struct {
	client *http.Client
	server string
	user   string
	token  string
}

// NewBitbucketServerReader returns a new [BitbucketServerReader].
func NewBitbucketServerReader(creds Credentials) *BitbucketServerReader {
	return &BitbucketServerReader{
		client: &http.Client{Timeout: readTimeout},
		server: strings.TrimSuffix(creds.BitbucketServer, "/"),
		user:   creds.BitbucketUser,
		token:  creds.BitbucketToken,
	}
}

// Supports reports whether ref is a Bitbucket Server reference.
func (r *BitbucketServerReader) Supports(ref string) bool {
	return strings.HasPrefix(ref, "bitbucket-server:")
}

// bitbucketRef is a parsed Bitbucket Server reference.
type bitbucketRef struct {
	project string
	repo    string
	path    string
	ref     string
}

func parseBitbucketRef(ref string) (bitbucketRef, error) {
	rest, gitref := splitGitRef(strings.TrimPrefix(ref, "bitbucket-server:"))

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return bitbucketRef{}, fmt.Errorf("bad Bitbucket Server reference %q, want bitbucket-server:project/repo/path[@ref]", ref)
	}

	return bitbucketRef{project: parts[0], repo: parts[1], path: parts[2], ref: gitref}, nil
}

// Read fetches the file through the raw endpoint.
func (r *BitbucketServerReader) Read(ref string, ctx *Context) (ReadResult, error) {
	if result, ok := ctx.Cache.Get(ref); ok {
		return result, nil
	}

	if r.server == "" {
		return ReadResult{}, fmt.Errorf("%w: no Bitbucket Server address configured for %s", ErrRead, ref)
	}

	parsed, err := parseBitbucketRef(ref)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	rev := pinnedRef(ref, parsed.ref, ctx)
	switch rev {
	case "":
		rev = defaultGitRef
	case latestRef:
		tags, err := r.tags(parsed)
		if err != nil {
			return ReadResult{}, err
		}
		rev = LatestTag(tags)
		if rev == "" {
			return ReadResult{}, fmt.Errorf("%w: %s has no tags to satisfy @latest", ErrRead, ref)
		}
	}

	var commitID string
	if isCommitSHA(rev) {
		commitID = rev
	} else if ctx.SaveDependencies {
		commitID, err = r.resolveCommit(parsed, rev)
		if err != nil {
			return ReadResult{}, err
		}
		rev = commitID
	}

	rawURL := fmt.Sprintf(
		"%s/rest/api/1.0/projects/%s/repos/%s/raw/%s?at=%s",
		r.server, parsed.project, parsed.repo, parsed.path, url.QueryEscape(rev),
	)
	body, err := r.get(rawURL)
	if err != nil {
		return ReadResult{}, err
	}

	result := ReadResult{Text: string(body), CommitID: commitID}
	ctx.Cache.Put(ref, result)
	return result, nil
}

// ParsePath derives location metadata from a Bitbucket Server reference.
func (r *BitbucketServerReader) ParsePath(ref string) PathMeta {
	parsed, err := parseBitbucketRef(ref)
	if err != nil {
		return PathMeta{File: ref}
	}

	prefix := "bitbucket-server:" + parsed.project + "/" + parsed.repo
	dir := path.Dir(parsed.path)

	meta := PathMeta{
		File:       path.Base(parsed.path),
		Path:       prefix,
		RepoRef:    parsed.ref,
		RepoPrefix: prefix,
	}
	if dir != "." {
		meta.Path = prefix + "/" + dir
	}

	return meta
}

// get performs an authenticated GET returning the response body.
func (r *BitbucketServerReader) get(url string) ([]byte, error) {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if r.token != "" {
		request.SetBasicAuth(r.user, r.token)
	}

	response, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrRead, url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned %s", ErrRead, url, response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s: %v", ErrRead, url, err)
	}

	return body, nil
}

// resolveCommit asks the API which commit a branch or tag currently points at.
func (r *BitbucketServerReader) resolveCommit(parsed bitbucketRef, rev string) (string, error) {
	commitsURL := fmt.Sprintf(
		"%s/rest/api/1.0/projects/%s/repos/%s/commits?until=%s&limit=1",
		r.server, parsed.project, parsed.repo, url.QueryEscape(rev),
	)
	body, err := r.get(commitsURL)
	if err != nil {
		return "", err
	}

	var payload struct {
		Values []struct {
			ID string `json:"id"`
		} `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decoding %s: %v", ErrRead, commitsURL, err)
	}
	if len(payload.Values) == 0 {
		return "", fmt.Errorf("%w: no commit found for %s", ErrRead, rev)
	}

	return payload.Values[0].ID, nil
}

// tags lists the repository's tags.
func (r *BitbucketServerReader) tags(parsed bitbucketRef) ([]string, error) {
	tagsURL := fmt.Sprintf(
		"%s/rest/api/1.0/projects/%s/repos/%s/tags?limit=100",
		r.server, parsed.project, parsed.repo,
	)
	body, err := r.get(tagsURL)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Values []struct {
			DisplayID string `json:"displayId"`
		} `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrRead, tagsURL, err)
	}

	tags := make([]string, 0, len(payload.Values))
	for _, tag := range payload.Values {
		tags = append(tags, tag.DisplayID)
	}

	return tags, nil
}
