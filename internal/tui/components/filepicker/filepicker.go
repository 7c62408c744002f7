// Package filepicker implements a custom filepicker bubbletea component.
package filepicker

import (
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Model is the file picker tea Model.
type Model struct {
	fp       filepicker.Model // The base filepicker we build off and customise
	help     help.Model       // The tea model providing the keymap help
	selected string           // The path to the file that was selected
	keys     keyMap           // The key bindings
	quitting bool             // Whether the TUI is quitting
}

// New returns a new [Model].
func New() Model {
	picker := filepicker.New()
	// Builder doesn't care about the host language so any file goes
	picker.CurrentDirectory = "."
	picker.KeyMap = filepicker.KeyMap{
		GoToTop:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "first")),
		GoToLast: key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "last")),
		Down:     key.NewBinding(key.WithKeys("j", "down", "ctrl+n"), key.WithHelp("↓/j", "down")),
		Up:       key.NewBinding(key.WithKeys("k", "up", "ctrl+p"), key.WithHelp("↑/k", "up")),
		PageUp:   key.NewBinding(key.WithKeys("K", "pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("J", "pgdown"), key.WithHelp("pgdown", "page down")),
		Back:     key.NewBinding(key.WithKeys("h", "backspace", "left", "esc"), key.WithHelp("h", "back")),
		Open:     key.NewBinding(key.WithKeys("l", "right", "enter"), key.WithHelp("l/→/enter", "open")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	}

	return Model{
		fp:   picker,
		help: help.New(),
		keys: keyMap(picker.KeyMap),
	}
}

// Selected returns the file that was eventually selected by the picker.
func (m Model) Selected() string {
	return m.selected
}

// keyMap builds on the bubbles filepicker key map by implementing the [help.KeyMap]
// interface which enables a nice keybinding help bar at the bottom of the page.
type keyMap filepicker.KeyMap

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up,
		k.Down,
		k.Back,
		k.Select,
	}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Back, k.Select},
		{k.GoToTop, k.GoToLast, k.PageUp},
		{k.PageDown, k.Open},
	}
}

// Init helps implement [tea.Model] for [Model] and initialises the TUI.
func (m Model) Init() tea.Cmd {
	return m.fp.Init()
}

// Update is part of implementing [tea.Model] and updates the UI in response to
// messages, in the case of a filepicker, the messages are keybindings moving
// the cursor up and down, and selecting files/directories.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.fp.SetHeight(msg.Height)
		m.help.Width = msg.Width
	}

	var cmd tea.Cmd
	m.fp, cmd = m.fp.Update(msg)

	// Did the user select a file?
	if didSelect, path := m.fp.DidSelectFile(msg); didSelect {
		m.selected = path
		m.quitting = true
		return m, tea.Quit
	}

	return m, cmd
}

// View is the last part of implementing [tea.Model] and shows the model to the user.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteByte('\n')
	if m.selected == "" {
		s.WriteString("Pick a file to preprocess:")
	} else {
		s.WriteString("Selected file: " + m.fp.Styles.Selected.Render(m.selected))
	}

	s.WriteByte('\n')
	s.WriteString(m.fp.View())

	s.WriteString(m.help.View(m.keys))
	return s.String()
}
