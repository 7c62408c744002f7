package source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

// GitHubReader reads files from GitHub repositories.
//
// References take the shorthand form `github:org/repo/path[@ref]` or the
// generic form `https://github.com/org/repo.git/path[@ref]`.
type GitHubReader struct {
	client *http.Client
	user   string
	token  string
}

// NewGitHubReader returns a new [GitHubReader].
func NewGitHubReader(creds Credentials) *GitHubReader {
	return &GitHubReader{
		client: &http.Client{Timeout: readTimeout},
		user:   creds.GitHubUser,
		token:  creds.GitHubToken,
	}
}

// Supports reports whether ref is a GitHub reference.
func (r *GitHubReader) Supports(ref string) bool {
	if strings.HasPrefix(ref, "github:") {
		return true
	}
	if strings.HasPrefix(ref, "https://github.com/") || strings.HasPrefix(ref, "http://github.com/") {
		return strings.Contains(ref, ".git/")
	}
	return false
}

// githubRef is a parsed GitHub reference.
type githubRef struct {
	org  string
	repo string
	path string
	ref  string
}

func parseGitHubRef(ref string) (githubRef, error) {
	var rest string
	if after, ok := strings.CutPrefix(ref, "github:"); ok {
		rest = after
	} else {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(ref, "https://"), "http://")
		trimmed = strings.TrimPrefix(trimmed, "github.com/")
		repoPath, filePath, found := strings.Cut(trimmed, ".git/")
		if !found {
			return githubRef{}, fmt.Errorf("bad GitHub reference %q", ref)
		}
		rest = repoPath + "/" + filePath
	}

	rest, gitref := splitGitRef(rest)
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return githubRef{}, fmt.Errorf("bad GitHub reference %q, want github:org/repo/path[@ref]", ref)
	}

	return githubRef{org: parts[0], repo: parts[1], path: parts[2], ref: gitref}, nil
}

// Read fetches the file from GitHub, resolving the "latest" pseudo-ref and
// dependency pins before hitting the raw content endpoint.
func (r *GitHubReader) Read(ref string, ctx *Context) (ReadResult, error) {
	if result, ok := ctx.Cache.Get(ref); ok {
		return result, nil
	}

	parsed, err := parseGitHubRef(ref)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	rev := pinnedRef(ref, parsed.ref, ctx)
	switch rev {
	case "":
		rev = defaultGitRef
	case latestRef:
		tags, err := r.tags(parsed.org, parsed.repo)
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
		commitID, err = r.resolveCommit(parsed.org, parsed.repo, rev)
		if err != nil {
			return ReadResult{}, err
		}
		rev = commitID
	}

	rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", parsed.org, parsed.repo, rev, parsed.path)
	body, err := r.get(rawURL)
	if err != nil {
		return ReadResult{}, err
	}

	result := ReadResult{Text: string(body), CommitID: commitID}
	ctx.Cache.Put(ref, result)
	return result, nil
}

// ParsePath derives location metadata from a GitHub reference.
func (r *GitHubReader) ParsePath(ref string) PathMeta {
	parsed, err := parseGitHubRef(ref)
	if err != nil {
		return PathMeta{File: ref}
	}

	prefix := "github:" + parsed.org + "/" + parsed.repo
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
func (r *GitHubReader) get(url string) ([]byte, error) {
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

// resolveCommit asks the GitHub API which commit a branch or tag currently
// points at.
func (r *GitHubReader) resolveCommit(org, repo, rev string) (string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits/%s", org, repo, rev)
	body, err := r.get(url)
	if err != nil {
		return "", err
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decoding %s: %v", ErrRead, url, err)
	}

	return payload.SHA, nil
}

// tags lists the repository's tags.
func (r *GitHubReader) tags(org, repo string) ([]string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/tags?per_page=100", org, repo)
	body, err := r.get(url)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrRead, url, err)
	}

	tags := make([]string, 0, len(payload))
	for _, tag := range payload {
		tags = append(tags, tag.Name)
	}

	return tags, nil
}
