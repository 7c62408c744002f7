package source

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// latestRef is the pseudo-ref that selects the greatest existing tag.
const latestRef = "latest"

// defaultGitRef is the revision used when a Git reference carries no
// explicit @ref suffix.
const defaultGitRef = "HEAD"

// splitGitRef splits "some/path@ref" into its path and ref parts.
//
// The last '@' wins so that paths containing '@' still work, and an absent
// suffix returns an empty ref.
func splitGitRef(s string) (path, ref string) {
	if idx := strings.LastIndexByte(s, '@'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// LatestTag returns the latest of the given tags under semantic version
// ordering.
//
// Tags are compared as semver after normalising a missing "v" prefix.
// Tags that are not valid semver sort before every valid tag, and among
// themselves lexicographically. Returns "" if tags is empty.
func LatestTag(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	sorted := make([]string, len(tags))
	copy(sorted, tags)

	sort.SliceStable(sorted, func(i, j int) bool {
		vi, oki := normalizeSemver(sorted[i])
		vj, okj := normalizeSemver(sorted[j])

		switch {
		case oki && okj:
			return semver.Compare(vi, vj) < 0
		case oki:
			return false // valid semver sorts after non-semver
		case okj:
			return true
		default:
			return sorted[i] < sorted[j]
		}
	})

	return sorted[len(sorted)-1]
}

// normalizeSemver normalises a Git tag to the "vMAJOR.MINOR.PATCH" form
// required by the semver package, reporting whether the result is valid.
func normalizeSemver(tag string) (string, bool) {
	v := tag
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v, semver.IsValid(v)
}

// isCommitSHA reports whether ref looks like a full Git commit ID.
func isCommitSHA(ref string) bool {
	if len(ref) != 40 {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// pinnedRef returns the effective git ref for a read: the recorded commit
// when the reference as written appears in the dependency map, otherwise
// the written ref.
func pinnedRef(written, gitref string, ctx *Context) string {
	if pin, ok := ctx.Dependencies[written]; ok && pin != "" {
		return pin
	}
	return gitref
}
