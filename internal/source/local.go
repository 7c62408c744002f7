package source

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalReader reads include references straight off the local filesystem.
//
// It supports any reference, so it must be registered last.
type LocalReader struct{}

// Supports reports whether the reader recognises ref. Anything can be tried
// as a local path.
func (LocalReader) Supports(ref string) bool {
	return true
}

// Read reads the file at ref.
func (LocalReader) Read(ref string, ctx *Context) (ReadResult, error) {
	contents, err := os.ReadFile(ref)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return ReadResult{Text: string(contents)}, nil
}

// ParsePath derives location metadata from a local path.
func (LocalReader) ParsePath(ref string) PathMeta {
	return PathMeta{
		File: filepath.Base(ref),
		Path: filepath.Dir(ref),
	}
}
