package machine_test

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"go.followtheprocess.codes/builder/internal/deps"
	"go.followtheprocess.codes/builder/internal/eval"
	"go.followtheprocess.codes/builder/internal/machine"
	"go.followtheprocess.codes/builder/internal/source"
	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/test"
)

// execute is a test helper that runs src through a machine backed only by
// the local filesystem reader.
func execute(tb testing.TB, src, file string, options machine.Options) (string, error) {
	tb.Helper()

	m := machine.New(source.NewRegistry(source.LocalReader{}), options)
	return m.Execute(src, file)
}

func TestPassthrough(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		src  string // Input text
	}{
		{name: "empty", src: ""},
		{name: "single line", src: "local x = 1;\n"},
		{name: "no trailing newline", src: "local x = 1;"},
		{name: "blank lines", src: "a\n\n\nb\n"},
		{name: "at signs", src: "email me someone@example.com\n"},
		{name: "comments untouched", src: "// a comment\n/* another */\n"},
		{name: "indented text", src: "\tfunction foo() {\n\t\treturn 1;\n\t}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, tt.src, "main.nut", machine.Options{})
			test.Ok(t, err)

			test.Diff(t, got, tt.src)
		})
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		src  string // Input text
		file string // Name of the top level file
		want string // Expected output
	}{
		{
			name: "set and splice builtin",
			src:  "@set SOMEVAR min(1, 2, 3)\n@{SOMEVAR}\n",
			file: "main.nut",
			want: "1\n",
		},
		{
			name: "set and splice expressions",
			src:  "@set name \"Someone\"\nHello, @{name}, the result is: @{123 * 456}.\n",
			file: "main.nut",
			want: "Hello, Someone, the result is: 56088.\n",
		},
		{
			name: "set with equals",
			src:  "@set GREETING = \"hi\"\n@{GREETING}\n",
			file: "main.nut",
			want: "hi\n",
		},
		{
			name: "reassignment",
			src:  "@set X 1\n@{X}\n@set X 2\n@{X}\n",
			file: "main.nut",
			want: "1\n2\n",
		},
		{
			name: "undefined variable splices to empty",
			src:  "[@{nope}]\n",
			file: "main.nut",
			want: "[]\n",
		},
		{
			name: "macro invocation",
			src: `@macro m(a, b, c)
Hello, @{a}!
Roses are @{b},
And violets are @{defined(c) ? c : "of unknown color"}.
@end
@include m("username", 123)
`,
			file: "main.nut",
			want: "Hello, username!\nRoses are 123,\nAnd violets are of unknown color.\n",
		},
		{
			name: "macro parameter reverts after return",
			src:  "@set p \"outer\"\n@macro m(p)\n@{p}\n@endmacro\n@include m(\"inner\")\n@{p}\n",
			file: "main.nut",
			want: "inner\nouter\n",
		},
		{
			name: "macro without arguments",
			src:  "@macro banner()\n=====\n@endmacro\n@include banner()\n@include banner\n",
			file: "main.nut",
			want: "=====\n=====\n",
		},
		{
			name: "conditional if branch",
			src:  "@if __FILE__ == 'abc.ext'\nA\n@elseif __FILE__ == 'def.ext'\nB\n@else\nC\n@endif\n",
			file: "abc.ext",
			want: "A\n",
		},
		{
			name: "conditional elseif branch",
			src:  "@if __FILE__ == 'abc.ext'\nA\n@elseif __FILE__ == 'def.ext'\nB\n@else\nC\n@endif\n",
			file: "def.ext",
			want: "B\n",
		},
		{
			name: "conditional else branch",
			src:  "@if __FILE__ == 'abc.ext'\nA\n@elseif __FILE__ == 'def.ext'\nB\n@else\nC\n@endif\n",
			file: "other.ext",
			want: "C\n",
		},
		{
			name: "nested conditionals",
			src:  "@if true\n@if false\nX\n@else\nY\n@endif\n@endif\n",
			file: "main.nut",
			want: "Y\n",
		},
		{
			name: "dead branch skipped entirely",
			src:  "@if false\n@error \"never evaluated\"\n@endif\nok\n",
			file: "main.nut",
			want: "ok\n",
		},
		{
			name: "end closes a conditional",
			src:  "@if true\nA\n@end\n",
			file: "main.nut",
			want: "A\n",
		},
		{
			name: "truthiness of zero",
			src:  "@set N 0\n@if N\nyes\n@else\nno\n@endif\n",
			file: "main.nut",
			want: "no\n",
		},
		{
			name: "line pseudo identifier",
			src:  "a\nline @{__LINE__}\n",
			file: "main.nut",
			want: "a\nline 2\n",
		},
		{
			name: "path pseudo identifier",
			src:  "@{__PATH__}\n",
			file: "lib/main.nut",
			want: "lib\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, tt.src, tt.file, machine.Options{})
			test.Ok(t, err)
			test.Diff(t, got, tt.want)
		})
	}
}

func TestDeadBranchMacroNotRegistered(t *testing.T) {
	// The definition of m sits in a dead branch so it must not register,
	// making @include m() a call to an unknown function
	src := "@if false\n@macro m()\nX\n@endmacro\n@endif\n@include m()\n"

	_, err := execute(t, src, "main.nut", machine.Options{})
	test.Err(t, err)
	test.True(t, errors.Is(err, eval.ErrName), test.Context("got %v", err))
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		src  string // Input text
		want error  // Expected error kind
	}{
		{name: "error directive", src: "@error \"boom\"\n", want: machine.ErrUser},
		{name: "unclosed if", src: "@if true\nA\n", want: machine.ErrSyntax},
		{name: "stray endif", src: "@endif\n", want: machine.ErrSyntax},
		{name: "stray else", src: "@else\n", want: machine.ErrSyntax},
		{name: "stray elseif", src: "@elseif true\n", want: machine.ErrSyntax},
		{name: "stray end", src: "@end\n", want: machine.ErrSyntax},
		{name: "stray endmacro", src: "@endmacro\n", want: machine.ErrSyntax},
		{name: "elseif after else", src: "@if false\n@else\n@elseif true\n@endif\n", want: machine.ErrSyntax},
		{name: "duplicate else", src: "@if false\n@else\n@else\n@endif\n", want: machine.ErrSyntax},
		{name: "unclosed macro", src: "@macro m()\nbody\n", want: machine.ErrSyntax},
		{name: "nested macro", src: "@macro a()\n@macro b()\n@endmacro\n@endmacro\n", want: machine.ErrSyntax},
		{name: "bad set", src: "@set 1 2\n", want: machine.ErrSyntax},
		{name: "unterminated splice", src: "text @{x + 1\n", want: machine.ErrSyntax},
		{name: "type error", src: "@set X true + 1\n", want: eval.ErrType},
		{name: "unknown function", src: "@{frobnicate()}\n", want: eval.ErrName},
		{name: "missing include", src: "@include \"definitely/not/here.nut\"\n", want: source.ErrRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.src, "main.nut", machine.Options{})
			test.Err(t, err)
			test.True(t, errors.Is(err, tt.want), test.Context("got %v, wanted %v", err, tt.want))
		})
	}
}

func TestUserErrorMessage(t *testing.T) {
	src := "@error \"Platform is \" + PLATFORM + \" is unsupported\"\n"

	_, err := execute(t, src, "main.nut", machine.Options{})
	test.Err(t, err)
	test.True(t, errors.Is(err, machine.ErrUser))
	test.True(
		t,
		strings.Contains(err.Error(), "Platform is null is unsupported"),
		test.Context("error was %v", err),
	)
}

func TestMacroRedefinitionWarns(t *testing.T) {
	src := "@macro m()\na\n@endmacro\n@macro m()\nb\n@endmacro\n@include m()\n"

	var warnings []string
	options := machine.Options{
		Warn: func(pos syntax.Position, msg string) {
			warnings = append(warnings, msg)
		},
	}

	got, err := execute(t, src, "main.nut", options)
	test.Ok(t, err)

	// Redefinition overwrites, with a warning
	test.Equal(t, got, "b\n")
	test.Equal(t, len(warnings), 1)
	test.True(t, strings.Contains(warnings[0], "redefined"))
}

func TestInclude(t *testing.T) {
	tmp := t.TempDir()

	write := func(name, contents string) {
		t.Helper()
		test.Ok(t, os.MkdirAll(filepath.Dir(filepath.Join(tmp, name)), 0o755))
		test.Ok(t, os.WriteFile(filepath.Join(tmp, name), []byte(contents), 0o644))
	}

	write("lib/util.nut", "// from util, file @{__FILE__}\n")
	write("lib/nested.nut", "@include \"util.nut\"\nnested done\n")
	write("defs.nut", "@macro greet(who)\nHello @{who}\n@endmacro\n")

	main := filepath.Join(tmp, "main.nut")

	t.Run("relative include", func(t *testing.T) {
		src := "start\n@include \"lib/util.nut\"\nend\n"

		got, err := execute(t, src, main, machine.Options{})
		test.Ok(t, err)
		test.Diff(t, got, "start\n// from util, file util.nut\nend\n")
	})

	t.Run("include resolves relative to includer", func(t *testing.T) {
		src := "@include \"lib/nested.nut\"\n"

		got, err := execute(t, src, main, machine.Options{})
		test.Ok(t, err)
		test.Diff(t, got, "// from util, file util.nut\nnested done\n")
	})

	t.Run("macro defined by include is visible after", func(t *testing.T) {
		src := "@include \"defs.nut\"\n@include greet(\"world\")\n"

		got, err := execute(t, src, main, machine.Options{})
		test.Ok(t, err)
		test.Diff(t, got, "Hello world\n")
	})

	t.Run("set in include lands in global scope", func(t *testing.T) {
		write("setter.nut", "@set FROM_INCLUDE 99\n")
		src := "@include \"setter.nut\"\n@{FROM_INCLUDE}\n"

		got, err := execute(t, src, main, machine.Options{})
		test.Ok(t, err)
		test.Diff(t, got, "99\n")
	})
}

func TestCircularInclude(t *testing.T) {
	tmp := t.TempDir()

	a := filepath.Join(tmp, "a.nut")
	b := filepath.Join(tmp, "b.nut")
	test.Ok(t, os.WriteFile(a, []byte("@include \"b.nut\"\n"), 0o644))
	test.Ok(t, os.WriteFile(b, []byte("@include \"a.nut\"\n"), 0o644))

	src := "before\n@include \"a.nut\"\nafter\n"

	_, err := execute(t, src, filepath.Join(tmp, "main.nut"), machine.Options{})
	test.Err(t, err)
	test.True(t, errors.Is(err, machine.ErrCircularInclude), test.Context("got %v", err))
}

func TestSelfInclude(t *testing.T) {
	tmp := t.TempDir()

	self := filepath.Join(tmp, "self.nut")
	test.Ok(t, os.WriteFile(self, []byte("@include \"self.nut\"\n"), 0o644))

	m := machine.New(source.NewRegistry(source.LocalReader{}), machine.Options{})

	_, err := m.Execute("@include \"self.nut\"\n", self)
	test.Err(t, err)
	test.True(t, errors.Is(err, machine.ErrCircularInclude), test.Context("got %v", err))
}

func TestLineControl(t *testing.T) {
	tmp := t.TempDir()
	test.Ok(t, os.WriteFile(filepath.Join(tmp, "inc.nut"), []byte("x\ny\n"), 0o644))

	src := "a\n@include \"inc.nut\"\nb\n"

	got, err := execute(t, src, filepath.Join(tmp, "main.nut"), machine.Options{GenerateLineControl: true})
	test.Ok(t, err)

	want := `#line 1 "main.nut"
a
#line 1 "inc.nut"
x
y
#line 3 "main.nut"
b
`
	test.Diff(t, got, want)
}

func TestLineControlSkipsDirectives(t *testing.T) {
	src := "a\n@set X 1\nb\n"

	got, err := execute(t, src, "main.nut", machine.Options{GenerateLineControl: true})
	test.Ok(t, err)

	// The @set line produces no output so b is not the natural successor
	// of a, a marker is required
	want := `#line 1 "main.nut"
a
#line 3 "main.nut"
b
`
	test.Diff(t, got, want)
}

func TestDefines(t *testing.T) {
	options := machine.Options{
		Defines: map[string]eval.Value{
			"PLATFORM": eval.String("esp32"),
			"DEBUG":    eval.Bool(true),
		},
	}

	src := "@if DEBUG\nplatform: @{PLATFORM}\n@endif\n"

	got, err := execute(t, src, "main.nut", options)
	test.Ok(t, err)
	test.Diff(t, got, "platform: esp32\n")
}

func TestUnknownSource(t *testing.T) {
	// No local catch-all registered
	m := machine.New(source.NewRegistry(source.NewHTTPReader()), machine.Options{})

	_, err := m.Execute("@include \"some/file.nut\"\n", "main.nut")
	test.Err(t, err)
	test.True(t, errors.Is(err, source.ErrUnknownSource), test.Context("got %v", err))
}

// fakeGitHub is a fake GitHub reader serving sources from memory, so the
// remote reading behaviour of the machine is testable without a network.
type fakeGitHub struct {
	heads  map[string]string // branch/tag → commit
	bodies map[string]string // "ref@commit" → text
	reads  int
}

func (f *fakeGitHub) Supports(ref string) bool {
	return strings.HasPrefix(ref, "github:")
}

func (f *fakeGitHub) Read(ref string, ctx *source.Context) (source.ReadResult, error) {
	f.reads++

	base, rev := splitRef(ref)
	if rev == "" {
		rev = "HEAD"
	}
	if pin, ok := ctx.Dependencies[ref]; ok {
		rev = pin
	}

	commit, ok := f.heads[rev]
	if !ok {
		commit = rev // Already a commit ID
	}

	text, ok := f.bodies[base+"@"+commit]
	if !ok {
		return source.ReadResult{}, fmt.Errorf("%w: not found: %s", source.ErrRead, ref)
	}

	return source.ReadResult{Text: text, CommitID: commit}, nil
}

func (f *fakeGitHub) ParsePath(ref string) source.PathMeta {
	base, rev := splitRef(ref)
	parts := strings.SplitN(strings.TrimPrefix(base, "github:"), "/", 3)
	prefix := "github:" + parts[0] + "/" + parts[1]

	meta := source.PathMeta{
		File:       path.Base(parts[2]),
		Path:       prefix,
		RepoRef:    rev,
		RepoPrefix: prefix,
	}
	if dir := path.Dir(parts[2]); dir != "." {
		meta.Path = prefix + "/" + dir
	}

	return meta
}

func splitRef(ref string) (base, rev string) {
	if idx := strings.LastIndexByte(ref, '@'); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}

func TestIncludeMemoized(t *testing.T) {
	commit := strings.Repeat("a", 40)
	fake := &fakeGitHub{
		heads:  map[string]string{"main": commit},
		bodies: map[string]string{"github:org/repo/lib.nut@" + commit: "lib\n"},
	}

	m := machine.New(source.NewRegistry(fake, source.LocalReader{}), machine.Options{CacheIncludes: true})

	src := "@include \"github:org/repo/lib.nut@main\"\n@include \"github:org/repo/lib.nut@main\"\n"

	got, err := m.Execute(src, "main.nut")
	test.Ok(t, err)
	test.Diff(t, got, "lib\nlib\n")
	test.Equal(t, fake.reads, 1, test.Context("memoisation did not stop the second read"))
}

func TestDependencyPinRoundTrip(t *testing.T) {
	oldCommit := strings.Repeat("a", 40)
	newCommit := strings.Repeat("b", 40)

	ref := "github:org/repo/lib.nut@main"
	fake := &fakeGitHub{
		heads: map[string]string{"main": oldCommit},
		bodies: map[string]string{
			"github:org/repo/lib.nut@" + oldCommit: "old\n",
			"github:org/repo/lib.nut@" + newCommit: "new\n",
		},
	}

	registry := source.NewRegistry(fake, source.LocalReader{})
	src := "@include \"" + ref + "\"\n"

	// First run records the pin
	recorder := machine.New(registry, machine.Options{SaveDependencies: true})
	got, err := recorder.Execute(src, "main.nut")
	test.Ok(t, err)
	test.Diff(t, got, "old\n")
	test.Equal(t, recorder.Dependencies()[ref], oldCommit)

	// The remote HEAD moves
	fake.heads["main"] = newCommit

	// Unpinned run sees the new content
	fresh := machine.New(registry, machine.Options{})
	got, err = fresh.Execute(src, "main.nut")
	test.Ok(t, err)
	test.Diff(t, got, "new\n")

	// Pinned run still sees the recorded commit
	pinned := machine.New(registry, machine.Options{Dependencies: recorder.Dependencies()})
	got, err = pinned.Execute(src, "main.nut")
	test.Ok(t, err)
	test.Diff(t, got, "old\n")
}

func TestRemoteRelativeIncludes(t *testing.T) {
	commit := strings.Repeat("c", 40)
	fake := &fakeGitHub{
		heads: map[string]string{"main": commit},
		bodies: map[string]string{
			"github:org/repo/lib/a.nut@" + commit: "@include \"b.nut\"\n",
			"github:org/repo/lib/b.nut@" + commit: "remote b\n",
		},
	}

	tmp := t.TempDir()
	test.Ok(t, os.WriteFile(filepath.Join(tmp, "b.nut"), []byte("local b\n"), 0o644))

	src := "@include \"github:org/repo/lib/a.nut@main\"\n"
	main := filepath.Join(tmp, "main.nut")

	t.Run("enabled", func(t *testing.T) {
		m := machine.New(source.NewRegistry(fake, source.LocalReader{}), machine.Options{RemoteRelativeIncludes: true})

		got, err := m.Execute(src, main)
		test.Ok(t, err)
		test.Diff(t, got, "remote b\n")
	})

	t.Run("disabled", func(t *testing.T) {
		m := machine.New(source.NewRegistry(fake, source.LocalReader{}), machine.Options{})

		got, err := m.Execute(src, main)
		test.Ok(t, err)
		test.Diff(t, got, "local b\n")
	})
}

func TestDependenciesReturnsMap(t *testing.T) {
	m := machine.New(source.NewRegistry(source.LocalReader{}), machine.Options{
		Dependencies: deps.Map{"ref": "commit"},
	})

	_, err := m.Execute("text\n", "main.nut")
	test.Ok(t, err)
	test.Equal(t, m.Dependencies()["ref"], "commit")
}
