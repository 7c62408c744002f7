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

// AzureReposReader reads files from Azure DevOps Git repositories via the
// REST API.
//
// References take the form `git-azure-repos:org/project/repo/path[@ref]`.
//
// The canonical implementation shells out to a helper process per fetch;
// the REST calls here preserve the same read semantics without the process
// model.
type AzureReposReader struct {
	client *http.Client
	user   string
	token  string
}

// NewAzureReposReader returns a new [AzureReposReader].
func NewAzureReposReader(creds Credentials) *AzureReposReader {
	return &AzureReposReader{
		client: &http.Client{Timeout: readTimeout},
		user:   creds.AzureUser,
		token:  creds.AzureToken,
	}
}

// Supports reports whether ref is an Azure Repos reference.
func (r *AzureReposReader) Supports(ref string) bool {
	return strings.HasPrefix(ref, "git-azure-repos:")
}

// azureRef is a parsed Azure Repos reference.
type azureRef struct {
	org     string
	project string
	repo    string
	path    string
	ref     string
}

func parseAzureRef(ref string) (azureRef, error) {
	rest, gitref := splitGitRef(strings.TrimPrefix(ref, "git-azure-repos:"))

	parts := strings.SplitN(rest, "/", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return azureRef{}, fmt.Errorf("bad Azure Repos reference %q, want git-azure-repos:org/project/repo/path[@ref]", ref)
	}

	return azureRef{org: parts[0], project: parts[1], repo: parts[2], path: parts[3], ref: gitref}, nil
}

// Read fetches the file through the items endpoint.
func (r *AzureReposReader) Read(ref string, ctx *Context) (ReadResult, error) {
	if result, ok := ctx.Cache.Get(ref); ok {
		return result, nil
	}

	parsed, err := parseAzureRef(ref)
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

	itemsURL := fmt.Sprintf(
		"https://dev.azure.com/%s/%s/_apis/git/repositories/%s/items?path=/%s&versionDescriptor.version=%s%s&api-version=7.1",
		parsed.org, parsed.project, parsed.repo,
		url.QueryEscape(parsed.path), url.QueryEscape(rev), versionType(rev),
	)
	body, err := r.get(itemsURL, "text/plain")
	if err != nil {
		return ReadResult{}, err
	}

	result := ReadResult{Text: string(body), CommitID: commitID}
	ctx.Cache.Put(ref, result)
	return result, nil
}

// ParsePath derives location metadata from an Azure Repos reference.
func (r *AzureReposReader) ParsePath(ref string) PathMeta {
	parsed, err := parseAzureRef(ref)
	if err != nil {
		return PathMeta{File: ref}
	}

	prefix := "git-azure-repos:" + parsed.org + "/" + parsed.project + "/" + parsed.repo
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

// versionType returns the versionDescriptor.versionType query fragment when
// rev is a concrete commit, the API defaults to branch/tag resolution
// otherwise.
func versionType(rev string) string {
	if isCommitSHA(rev) {
		return "&versionDescriptor.versionType=commit"
	}
	return ""
}

// get performs an authenticated GET returning the response body.
func (r *AzureReposReader) get(url, accept string) ([]byte, error) {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	request.Header.Set("Accept", accept)
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
func (r *AzureReposReader) resolveCommit(parsed azureRef, rev string) (string, error) {
	commitsURL := fmt.Sprintf(
		"https://dev.azure.com/%s/%s/_apis/git/repositories/%s/commits?searchCriteria.itemVersion.version=%s&$top=1&api-version=7.1",
		parsed.org, parsed.project, parsed.repo, url.QueryEscape(rev),
	)
	body, err := r.get(commitsURL, "application/json")
	if err != nil {
		return "", err
	}

	var payload struct {
		Value []struct {
			CommitID string `json:"commitId"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decoding %s: %v", ErrRead, commitsURL, err)
	}
	if len(payload.Value) == 0 {
		return "", fmt.Errorf("%w: no commit found for %s", ErrRead, rev)
	}

	return payload.Value[0].CommitID, nil
}

// tags lists the repository's tags.
func (r *AzureReposReader) tags(parsed azureRef) ([]string, error) {
	refsURL := fmt.Sprintf(
		"https://dev.azure.com/%s/%s/_apis/git/repositories/%s/refs?filter=tags/&api-version=7.1",
		parsed.org, parsed.project, parsed.repo,
	)
	body, err := r.get(refsURL, "application/json")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrRead, refsURL, err)
	}

	tags := make([]string, 0, len(payload.Value))
	for _, tag := range payload.Value {
		tags = append(tags, strings.TrimPrefix(tag.Name, "refs/tags/"))
	}

	return tags, nil
}
