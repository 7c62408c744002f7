// Package tui implements the terminal user interface for picking a source
// file to preprocess, this is what happens when users call `builder` with
// no arguments.
package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/builder/internal/builder"
	"go.followtheprocess.codes/builder/internal/tui/components/filepicker"
)

// Run runs the TUI: pick a file, preprocess it, print the result.
func Run() error {
	model := filepicker.New()

	tm, err := tea.NewProgram(&model).Run()
	if err != nil {
		return err
	}

	final, ok := tm.(filepicker.Model)
	if !ok {
		return fmt.Errorf("tui error, final model was not as expected: %T", tm)
	}

	file := final.Selected()
	if file == "" {
		// The user quit without picking anything
		return nil
	}

	app := builder.New(os.Stdout, os.Stderr, false)
	return app.Build(file, builder.BuildOptions{})
}
