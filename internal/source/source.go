// Package source implements the pluggable readers that fetch include
// references for the preprocessor: local files, HTTP(S) URLs and files in
// Git repositories.
//
// Readers are registered on a [Registry] in priority order, the first reader
// whose Supports returns true for a reference wins. The preprocessor driver
// is the only caller and drives readers synchronously, one read at a time.
package source

import (
	"errors"
	"fmt"
	"time"
)

// readTimeout bounds a single remote read.
const readTimeout = 30 * time.Second

var (
	// ErrUnknownSource is the error returned when no registered reader
	// supports an include reference.
	ErrUnknownSource = errors.New("unknown source")

	// ErrRead wraps any failure to fetch a supported reference: HTTP
	// status, I/O, timeout or subprocess failure.
	ErrRead = errors.New("source reading error")
)

// PathMeta is the location metadata a reader derives from a reference,
// exposed to the preprocessed source as __FILE__, __PATH__, __REPO_REF__
// and __REPO_PREFIX__.
type PathMeta struct {
	File       string // The file name, e.g. "util.nut"
	Path       string // The directory portion, e.g. "lib" or "github:org/repo/lib"
	RepoRef    string // For Git sources, the branch/tag/commit as referenced
	RepoPrefix string // For Git sources, the repo identifier e.g. "github:org/repo"
}

// ReadResult is the outcome of a successful read.
type ReadResult struct {
	Text     string // The fetched source text
	CommitID string // For Git sources, the commit the text was read at (when resolved)
}

// Credentials carries the secret material readers may need to authenticate.
type Credentials struct {
	GitHubUser      string // GitHub username
	GitHubToken     string // GitHub personal access token
	AzureUser       string // Azure DevOps username
	AzureToken      string // Azure DevOps personal access token
	BitbucketServer string // Base URL of the Bitbucket Server instance
	BitbucketUser   string // Bitbucket Server username
	BitbucketToken  string // Bitbucket Server token
}

// Context carries the per-execute state a reader may consult during a read.
type Context struct {
	// Dependencies maps include references to pinned commit IDs. When the
	// reference being read has an entry, Git readers substitute the pinned
	// commit for the written ref.
	Dependencies map[string]string

	// Cache is the commit cache, may be nil to disable caching.
	Cache *CommitCache

	// Credentials is the secret material for authenticated reads.
	Credentials Credentials

	// SaveDependencies asks Git readers to resolve and return the concrete
	// commit ID alongside the text so the driver can record new pins.
	SaveDependencies bool
}

// Reader is a capability that can fetch include references of a particular
// shape.
type Reader interface {
	// Supports reports whether this reader recognises ref.
	Supports(ref string) bool

	// Read fetches the content of ref.
	Read(ref string, ctx *Context) (ReadResult, error)

	// ParsePath derives location metadata from ref.
	ParsePath(ref string) PathMeta
}

// Registry routes an include reference to the first registered reader that
// supports it.
type Registry struct {
	readers []Reader
}

// NewRegistry returns a [Registry] over the given readers, in priority order.
func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// Register appends a reader to the registry.
func (r *Registry) Register(reader Reader) {
	r.readers = append(r.readers, reader)
}

// Lookup returns the first reader that supports ref.
func (r *Registry) Lookup(ref string) (Reader, error) {
	for _, reader := range r.readers {
		if reader.Supports(ref) {
			return reader, nil
		}
	}

	return nil, fmt.Errorf("%w: no reader supports %q", ErrUnknownSource, ref)
}

// DefaultRegistry returns a [Registry] with the full set of readers:
// GitHub, HTTP(S), Azure Repos, Bitbucket Server, local Git repos and
// finally the local filesystem as the catch-all.
//
// GitHub comes before HTTP(S) so that generic github.com `.git` URLs are
// read as Git references rather than plain HTTP.
func DefaultRegistry(creds Credentials) *Registry {
	return NewRegistry(
		NewGitHubReader(creds),
		NewHTTPReader(),
		NewAzureReposReader(creds),
		NewBitbucketServerReader(creds),
		GitLocalReader{},
		LocalReader{},
	)
}

// CommitCache remembers the body and commit ID a reference resolved to, so
// repeated includes of the same reference within or across executes don't
// refetch.
//
// The identity of an entry is the full reference string including any ref
// suffix. The cache is owned by a single driver instance and is not safe
// for concurrent use.
type CommitCache struct {
	entries map[string]ReadResult
}

// NewCommitCache returns an empty [CommitCache].
func NewCommitCache() *CommitCache {
	return &CommitCache{entries: make(map[string]ReadResult)}
}

// Get returns the cached result for ref, if present.
func (c *CommitCache) Get(ref string) (ReadResult, bool) {
	if c == nil {
		return ReadResult{}, false
	}
	result, ok := c.entries[ref]
	return result, ok
}

// Put stores the result for ref.
func (c *CommitCache) Put(ref string, result ReadResult) {
	if c == nil {
		return
	}
	c.entries[ref] = result
}

// Clear empties the cache.
func (c *CommitCache) Clear() {
	if c == nil {
		return
	}
	clear(c.entries)
}
