// Package builder implements the actual functionality exposed via the CLI.
package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.followtheprocess.codes/builder/internal/deps"
	"go.followtheprocess.codes/builder/internal/eval"
	"go.followtheprocess.codes/builder/internal/machine"
	"go.followtheprocess.codes/builder/internal/source"
	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/msg"
)

// Builder holds the state of the program.
type Builder struct {
	stdout io.Writer    // Preprocessed output and messages are written here
	stderr io.Writer    // Diagnostics and debug info
	logger *slog.Logger // Debug logging, enabled with verbose
}

// New returns a new instance of [Builder].
func New(stdout, stderr io.Writer, verbose bool) Builder {
	return Builder{
		stdout: stdout,
		stderr: stderr,
		logger: newLogger(stderr, verbose),
	}
}

// BuildOptions are the flags passed to the `builder build` subcommand.
type BuildOptions struct {
	Output                 string // Write the output here instead of stdout
	Defines                string // Comma separated NAME=VALUE pairs seeding the global scope
	UseDependencies        string // Path of a dependency map to pin reads with
	SaveDependencies       string // Path of a dependency map to record pins into
	GitHubUser             string
	GitHubToken            string
	AzureUser              string
	AzureToken             string
	BitbucketServer        string
	BitbucketUser          string
	BitbucketToken         string
	LineControl            bool // Emit #line markers
	RemoteRelativeIncludes bool // Resolve relative includes in remote sources remotely
	ClearCache             bool // Empty the caches before processing
	Verbose                bool // Enable debug logging
}

// credentials gathers the configured secret material for readers.
func (o BuildOptions) credentials() source.Credentials {
	return source.Credentials{
		GitHubUser:      o.GitHubUser,
		GitHubToken:     o.GitHubToken,
		AzureUser:       o.AzureUser,
		AzureToken:      o.AzureToken,
		BitbucketServer: o.BitbucketServer,
		BitbucketUser:   o.BitbucketUser,
		BitbucketToken:  o.BitbucketToken,
	}
}

// Build implements the `builder build` subcommand, preprocessing a single
// source file.
func (b Builder) Build(file string, options BuildOptions) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	defines, err := parseDefines(options.Defines)
	if err != nil {
		return err
	}

	var dependencies deps.Map
	if options.UseDependencies != "" {
		dependencies, err = deps.Load(options.UseDependencies)
		if err != nil {
			return err
		}
		b.logger.Debug("Loaded dependency map", "path", options.UseDependencies, "pins", len(dependencies))
	}

	warn := func(pos syntax.Position, message string) {
		msg.Fwarn(b.stderr, "%s: %s", pos, message)
	}

	m := machine.New(source.DefaultRegistry(options.credentials()), machine.Options{
		Dependencies:           dependencies,
		Defines:                defines,
		Credentials:            options.credentials(),
		Warn:                   warn,
		GenerateLineControl:    options.LineControl,
		RemoteRelativeIncludes: options.RemoteRelativeIncludes,
		CacheIncludes:          true,
		ClearCache:             options.ClearCache,
		SaveDependencies:       options.SaveDependencies != "",
	})

	b.logger.Debug("Processing", "file", file)
	output, err := m.Execute(string(src), file)
	if err != nil {
		return err
	}

	if options.SaveDependencies != "" {
		if err := deps.Save(options.SaveDependencies, m.Dependencies()); err != nil {
			return err
		}
		b.logger.Debug("Saved dependency map", "path", options.SaveDependencies, "pins", len(m.Dependencies()))
	}

	if options.Output != "" {
		return os.WriteFile(options.Output, []byte(output), 0o644)
	}

	_, err = io.WriteString(b.stdout, output)
	return err
}

// CheckOptions are the flags passed to the `builder check` subcommand.
type CheckOptions struct {
	Verbose bool // Enable debug logging
}

// Check implements the `builder check` subcommand, validating directive
// structure and expressions without fetching any includes.
func (b Builder) Check(files []string, options CheckOptions) error {
	var failed bool
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		if err := machine.Check(string(src), file, syntax.PrettyConsoleHandler(b.stderr)); err != nil {
			failed = true
			continue
		}

		msg.Fsuccess(b.stdout, "%s is valid", file)
	}

	if failed {
		return errors.New("some files had errors")
	}

	return nil
}

// Deps implements the `builder deps` subcommand, processing a file while
// recording dependency pins and printing the resulting map as JSON.
func (b Builder) Deps(file string, options BuildOptions) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	var dependencies deps.Map
	if options.UseDependencies != "" {
		dependencies, err = deps.Load(options.UseDependencies)
		if err != nil {
			return err
		}
	}

	m := machine.New(source.DefaultRegistry(options.credentials()), machine.Options{
		Dependencies:           dependencies,
		Credentials:            options.credentials(),
		RemoteRelativeIncludes: options.RemoteRelativeIncludes,
		CacheIncludes:          true,
		SaveDependencies:       true,
	})

	if _, err := m.Execute(string(src), file); err != nil {
		return err
	}

	encoder := json.NewEncoder(b.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(m.Dependencies())
}

// parseDefines parses the --define flag: comma separated NAME=VALUE pairs.
//
// Values that read as expression literals become that kind, anything else
// is a string.
func parseDefines(raw string) (map[string]eval.Value, error) {
	if raw == "" {
		return nil, nil
	}

	defines := make(map[string]eval.Value)
	for pair := range strings.SplitSeq(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("bad define %q, want NAME=VALUE", pair)
		}
		defines[name] = literal(value)
	}

	return defines, nil
}

// literal converts a raw define value to the expression value it reads as.
func literal(raw string) eval.Value {
	switch raw {
	case "true":
		return eval.Bool(true)
	case "false":
		return eval.Bool(false)
	case "null":
		return eval.Null
	}

	if number, err := strconv.ParseFloat(raw, 64); err == nil {
		return eval.Number(number)
	}

	return eval.String(raw)
}
