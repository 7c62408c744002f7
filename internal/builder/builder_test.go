package builder_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.followtheprocess.codes/builder/internal/builder"
	"go.followtheprocess.codes/test"
)

func TestCheck(t *testing.T) {
	good := filepath.Join("testdata", "check", "good.nut")
	bad := filepath.Join("testdata", "check", "bad.nut")

	t.Run("good", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		err := app.Check([]string{good}, builder.CheckOptions{})
		test.Ok(t, err)

		// Stderr should be empty
		test.Equal(t, stderr.String(), "")

		// Stdout should have the success message
		want := fmt.Sprintf("Success: %s is valid\n", good)
		test.Equal(t, stdout.String(), want)
	})

	t.Run("bad", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		err := app.Check([]string{bad}, builder.CheckOptions{})
		test.Err(t, err)

		// Stderr should have the diagnostics
		got := stderr.String()
		test.True(t, strings.Contains(got, "without matching @if"), test.Context("stderr was %q", got))

		// Stdout should be empty
		test.Equal(t, stdout.String(), "")
	})
}

func TestBuild(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "// fetched from the network\n")
	}))
	defer server.Close()

	src := fmt.Sprintf(`@set GREETING "hello"
@{GREETING} world
@include "%s/lib.nut"
@if DEBUG
debugging
@endif
`, server.URL)

	tmp := t.TempDir()
	file := filepath.Join(tmp, "main.nut")
	test.Ok(t, os.WriteFile(file, []byte(src), 0o644))

	t.Run("to stdout", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		err := app.Build(file, builder.BuildOptions{})
		test.Ok(t, err)

		want := "hello world\n// fetched from the network\n"
		test.Diff(t, stdout.String(), want)
	})

	t.Run("with defines", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		err := app.Build(file, builder.BuildOptions{Defines: "DEBUG=true"})
		test.Ok(t, err)

		want := "hello world\n// fetched from the network\ndebugging\n"
		test.Diff(t, stdout.String(), want)
	})

	t.Run("to file", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		out := filepath.Join(tmp, "out.nut")
		err := app.Build(file, builder.BuildOptions{Output: out})
		test.Ok(t, err)

		// Nothing on stdout, everything in the file
		test.Equal(t, stdout.String(), "")

		contents, err := os.ReadFile(out)
		test.Ok(t, err)
		test.Diff(t, string(contents), "hello world\n// fetched from the network\n")
	})

	t.Run("line control", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := builder.New(stdout, stderr, false)

		err := app.Build(file, builder.BuildOptions{LineControl: true})
		test.Ok(t, err)

		test.True(
			t,
			strings.Contains(stdout.String(), `#line 2 "main.nut"`),
			test.Context("output was %q", stdout.String()),
		)
	})
}

func TestBuildErrors(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "main.nut")
	test.Ok(t, os.WriteFile(file, []byte("@error \"nope\"\n"), 0o644))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	app := builder.New(stdout, stderr, false)

	err := app.Build(file, builder.BuildOptions{})
	test.Err(t, err)
	test.True(t, strings.Contains(err.Error(), "nope"), test.Context("error was %v", err))

	// A bad define is caught before any processing
	err = app.Build(file, builder.BuildOptions{Defines: "NOEQUALS"})
	test.Err(t, err)
}

func TestDeps(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "main.nut")
	test.Ok(t, os.WriteFile(file, []byte("no remote includes here\n"), 0o644))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	app := builder.New(stdout, stderr, false)

	err := app.Deps(file, builder.BuildOptions{})
	test.Ok(t, err)

	// No remote sources means no pins
	test.Equal(t, strings.TrimSpace(stdout.String()), "{}")
}
