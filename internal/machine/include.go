package machine

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.followtheprocess.codes/builder/internal/eval"
	"go.followtheprocess.codes/builder/internal/source"
	"go.followtheprocess.codes/builder/internal/syntax"
)

// include implements the @include directive: either a macro invocation when
// the expression names a registered macro, or the inclusion of another
// source.
func (m *Machine) include(rest string, pos syntax.Position, fr frame) error {
	expr, err := m.parseExpr(rest, pos)
	if err != nil {
		return err
	}

	switch expr := expr.(type) {
	case syntax.CallExpr:
		if mac, ok := m.macros[expr.Fn]; ok {
			return m.invoke(mac, expr.Args, pos, fr)
		}
	case syntax.Ident:
		if mac, ok := m.macros[expr.Name]; ok {
			return m.invoke(mac, nil, pos, fr)
		}
	}

	value, err := eval.Eval(expr, m.env, pos)
	if err != nil {
		return fmt.Errorf("%s: %w", pos, err)
	}

	return m.includeSource(value.String(), pos, fr)
}

// invoke expands a macro: arguments are evaluated in the caller's
// environment, a fresh scope binds the parameters, and the body is
// re-processed as if it were a source included from the definition site.
func (m *Machine) invoke(mac macro, args []syntax.Expr, pos syntax.Position, fr frame) error {
	bindings := make(map[string]eval.Value, len(mac.params))
	for i, param := range mac.params {
		// Unsupplied parameters are left unbound, so they read as null and
		// defined() reports false
		if i >= len(args) {
			continue
		}
		value, err := eval.Eval(args[i], m.env, pos)
		if err != nil {
			return fmt.Errorf("%s: %w", pos, err)
		}
		bindings[param] = value
	}

	m.env.Push(bindings)
	defer m.env.Pop()

	body := strings.Join(mac.body, "\n")
	if body != "" {
		body += "\n"
	}

	return m.processSource(body, frame{
		file:       mac.file,
		path:       fr.path,
		repoRef:    fr.repoRef,
		repoPrefix: fr.repoPrefix,
		remote:     fr.remote,
		lineOffset: mac.line,
	})
}

// includeSource resolves ref against the current frame, routes it to a
// reader and processes the result as a nested source.
func (m *Machine) includeSource(ref string, pos syntax.Position, fr frame) error {
	effective := m.resolveRef(ref, fr)

	reader, err := m.registry.Lookup(effective)
	if err != nil {
		return fmt.Errorf("%s: %w", pos, err)
	}

	for _, f := range m.frames {
		if f.resolvedID == effective {
			return fmt.Errorf("%s: %w: %s", pos, ErrCircularInclude, effective)
		}
	}

	result, cached := m.memo[effective]
	if !cached || !m.options.CacheIncludes {
		ctx := &source.Context{
			Dependencies:     m.deps,
			Cache:            m.cache,
			Credentials:      m.options.Credentials,
			SaveDependencies: m.options.SaveDependencies,
		}

		result, err = reader.Read(effective, ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", pos, err)
		}

		if m.options.CacheIncludes {
			m.memo[effective] = result
		}
	}

	if m.options.SaveDependencies && result.CommitID != "" {
		if _, exists := m.deps[effective]; !exists {
			m.deps[effective] = result.CommitID
		}
	}

	meta := reader.ParsePath(effective)

	return m.processSource(result.Text, frame{
		file:       meta.File,
		path:       meta.Path,
		repoRef:    meta.RepoRef,
		repoPrefix: meta.RepoPrefix,
		resolvedID: effective,
		remote:     isRemoteRef(effective),
	})
}

// resolveRef turns an include reference as written into an effective,
// absolute reference using the including frame as the base.
func (m *Machine) resolveRef(ref string, fr frame) string {
	if isRemoteRef(ref) {
		return ref
	}

	// An absolute-looking ref resolves against the repo root when we're
	// inside a repo frame, otherwise the filesystem root
	if strings.HasPrefix(ref, "/") {
		if fr.repoPrefix != "" {
			return fr.repoPrefix + path.Clean(ref) + refSuffix(fr)
		}
		return filepath.Clean(ref)
	}

	if fr.remote {
		if m.options.RemoteRelativeIncludes {
			return joinRef(fr.path, ref) + refSuffix(fr)
		}
		// Fall back to resolving against the top level local path
		return filepath.Join(m.frames[0].path, ref)
	}

	return filepath.Join(fr.path, ref)
}

// refSuffix returns the @ref suffix that keeps a relative repo include on
// the same ref as its includer.
func refSuffix(fr frame) string {
	if fr.repoRef != "" {
		return "@" + fr.repoRef
	}
	return ""
}

// joinRef joins a relative reference onto a remote base, preserving the
// scheme or shorthand prefix while cleaning the path part.
func joinRef(base, rel string) string {
	if idx := strings.Index(base, "://"); idx >= 0 {
		return base[:idx+3] + path.Join(base[idx+3:], rel)
	}

	if scheme, rest, ok := strings.Cut(base, ":"); ok {
		return scheme + ":" + path.Join(rest, rel)
	}

	return filepath.Join(base, rel)
}

// isRemoteRef reports whether ref is already absolute: a URL or one of the
// provider shorthand schemes.
func isRemoteRef(ref string) bool {
	return strings.Contains(ref, "://") ||
		strings.HasPrefix(ref, "github:") ||
		strings.HasPrefix(ref, "git-azure-repos:") ||
		strings.HasPrefix(ref, "bitbucket-server:") ||
		strings.HasPrefix(ref, "git-local:")
}
