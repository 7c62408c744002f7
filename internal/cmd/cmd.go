// Package cmd implements builder's CLI.
package cmd

import (
	"go.followtheprocess.codes/builder/internal/builder"
	"go.followtheprocess.codes/builder/internal/tui"
	"go.followtheprocess.codes/cli"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build returns the root builder CLI command.
func Build() (*cli.Command, error) {
	return cli.New(
		"builder",
		cli.Short("Preprocess source files with @directives, includes and macros"),
		cli.Allow(cli.NoArgs()),
		cli.Version(version),
		cli.Commit(commit),
		cli.BuildDate(date),
		cli.Run(func(cmd *cli.Command, args []string) error {
			// Bare invocation opens the interactive picker
			return tui.Run()
		}),
		cli.SubCommands(build, check, depsCmd),
	)
}

const buildLong = `
The file is processed top to bottom: directive lines (@set, @if, @include,
@macro etc.) are interpreted, inline @{expression} splices are evaluated,
everything else passes through untouched.

Includes may reference local files, http(s) URLs, or files inside Git
repositories, e.g. "github:org/repo/file.nut@v1.2.0". Remote references can
be pinned to exact commits with '--save-dependencies' and replayed with
'--use-dependencies'.
`

// build returns the build subcommand.
func build() (*cli.Command, error) {
	var options builder.BuildOptions
	return cli.New(
		"build",
		cli.Short("Preprocess a source file"),
		cli.Long(buildLong),
		cli.RequiredArg("file", "Path of the source file to preprocess"),
		cli.Flag(&options.Output, "output", 'o', "", "Write the output to a file instead of stdout"),
		cli.Flag(&options.Defines, "define", 'D', "", "Comma separated NAME=VALUE pairs defining global variables"),
		cli.Flag(&options.LineControl, "line-control", 'l', false, "Emit #line markers tracking original source locations"),
		cli.Flag(
			&options.RemoteRelativeIncludes,
			"remote-relative-includes",
			cli.NoShortHand,
			false,
			"Resolve relative includes found in remote sources against the remote location",
		),
		cli.Flag(&options.UseDependencies, "use-dependencies", cli.NoShortHand, "", "Pin remote reads to the commits recorded in this file"),
		cli.Flag(&options.SaveDependencies, "save-dependencies", cli.NoShortHand, "", "Record resolved commits into this file"),
		cli.Flag(&options.ClearCache, "clear-cache", cli.NoShortHand, false, "Empty the commit cache before processing"),
		cli.Flag(&options.GitHubUser, "github-user", cli.NoShortHand, "", "GitHub username for authenticated reads"),
		cli.Flag(&options.GitHubToken, "github-token", cli.NoShortHand, "", "GitHub personal access token"),
		cli.Flag(&options.AzureUser, "azure-user", cli.NoShortHand, "", "Azure DevOps username"),
		cli.Flag(&options.AzureToken, "azure-token", cli.NoShortHand, "", "Azure DevOps personal access token"),
		cli.Flag(&options.BitbucketServer, "bitbucket-server", cli.NoShortHand, "", "Base URL of a Bitbucket Server instance"),
		cli.Flag(&options.BitbucketUser, "bitbucket-user", cli.NoShortHand, "", "Bitbucket Server username"),
		cli.Flag(&options.BitbucketToken, "bitbucket-token", cli.NoShortHand, "", "Bitbucket Server token"),
		cli.Flag(&options.Verbose, "verbose", 'v', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := builder.New(cmd.Stdout(), cmd.Stderr(), options.Verbose)
			return app.Build(cmd.Arg("file"), options)
		}),
	)
}

// check returns the check subcommand.
func check() (*cli.Command, error) {
	var options builder.CheckOptions
	return cli.New(
		"check",
		cli.Short("Check source files for directive and expression errors"),
		cli.Allow(cli.MinArgs(1)),
		cli.Flag(&options.Verbose, "verbose", 'v', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := builder.New(cmd.Stdout(), cmd.Stderr(), options.Verbose)
			return app.Check(args, options)
		}),
	)
}

// depsCmd returns the deps subcommand.
func depsCmd() (*cli.Command, error) {
	var options builder.BuildOptions
	return cli.New(
		"deps",
		cli.Short("Show the pinned dependencies of a source file as JSON"),
		cli.RequiredArg("file", "Path of the source file to analyse"),
		cli.Flag(&options.UseDependencies, "use-dependencies", cli.NoShortHand, "", "Start from the pins recorded in this file"),
		cli.Flag(&options.GitHubUser, "github-user", cli.NoShortHand, "", "GitHub username for authenticated reads"),
		cli.Flag(&options.GitHubToken, "github-token", cli.NoShortHand, "", "GitHub personal access token"),
		cli.Flag(&options.Verbose, "verbose", 'v', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := builder.New(cmd.Stdout(), cmd.Stderr(), options.Verbose)
			return app.Deps(cmd.Arg("file"), options)
		}),
	)
}
