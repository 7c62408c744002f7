package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitLocalReader reads files out of a Git repository on the local
// filesystem without touching the working tree, so any committed ref can be
// included regardless of what is currently checked out.
//
// References take the form `git-local:/path/to/repo/path/in/repo[@ref]`.
type GitLocalReader struct{}

// Supports reports whether ref is a local Git repository reference.
func (GitLocalReader) Supports(ref string) bool {
	return strings.HasPrefix(ref, "git-local:")
}

// gitLocalRef is a parsed local Git reference.
type gitLocalRef struct {
	root string // Repository root on disk
	path string // Path of the file within the repository
	ref  string
}

// parseGitLocalRef splits a reference into the repository root and the path
// within it by probing the filesystem for the .git directory.
func parseGitLocalRef(ref string) (gitLocalRef, error) {
	rest, gitref := splitGitRef(strings.TrimPrefix(ref, "git-local:"))

	// Walk up from the full path until we find the repository root
	for dir := filepath.Dir(rest); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			inner, err := filepath.Rel(dir, rest)
			if err != nil {
				return gitLocalRef{}, err
			}
			return gitLocalRef{root: dir, path: filepath.ToSlash(inner), ref: gitref}, nil
		}

		if dir == filepath.Dir(dir) {
			return gitLocalRef{}, fmt.Errorf("no git repository found containing %q", rest)
		}
	}
}

// Read fetches the file contents at the requested ref by shelling out to git.
func (GitLocalReader) Read(ref string, ctx *Context) (ReadResult, error) {
	if result, ok := ctx.Cache.Get(ref); ok {
		return result, nil
	}

	parsed, err := parseGitLocalRef(ref)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	rev := pinnedRef(ref, parsed.ref, ctx)
	switch rev {
	case "":
		rev = defaultGitRef
	case latestRef:
		tags, err := git(parsed.root, "tag", "--list")
		if err != nil {
			return ReadResult{}, err
		}
		rev = LatestTag(strings.Fields(tags))
		if rev == "" {
			return ReadResult{}, fmt.Errorf("%w: %s has no tags to satisfy @latest", ErrRead, ref)
		}
	}

	var commitID string
	if isCommitSHA(rev) {
		commitID = rev
	} else if ctx.SaveDependencies {
		resolved, err := git(parsed.root, "rev-parse", rev)
		if err != nil {
			return ReadResult{}, err
		}
		commitID = strings.TrimSpace(resolved)
		rev = commitID
	}

	text, err := git(parsed.root, "show", rev+":"+parsed.path)
	if err != nil {
		return ReadResult{}, err
	}

	result := ReadResult{Text: text, CommitID: commitID}
	ctx.Cache.Put(ref, result)
	return result, nil
}

// ParsePath derives location metadata from a local Git reference.
func (GitLocalReader) ParsePath(ref string) PathMeta {
	parsed, err := parseGitLocalRef(ref)
	if err != nil {
		return PathMeta{File: ref}
	}

	prefix := "git-local:" + filepath.ToSlash(parsed.root)
	dir := filepath.ToSlash(filepath.Dir(parsed.path))

	meta := PathMeta{
		File:       filepath.Base(parsed.path),
		Path:       prefix,
		RepoRef:    parsed.ref,
		RepoPrefix: prefix,
	}
	if dir != "." {
		meta.Path = prefix + "/" + dir
	}

	return meta
}

// git runs a git subcommand against the repository at root, returning its
// stdout.
func git(root string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: git %s: %s", ErrRead, strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: git %s: %v", ErrRead, strings.Join(args, " "), err)
	}

	return string(out), nil
}
