package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fahmaliyi/kapa/vault"
	"github.com/spf13/cobra"
)

const (
	stateTable     = "table"
	stateShowEntry = "showEntry"
	stateAddEntry  = "addEntry"
)

// Input order of the add form.
const (
	fieldName = iota
	fieldDesc
	fieldUser
	fieldEmail
	fieldNotes
	fieldPassword
)

type clearClipboardMsg struct{}

type model struct {
	app     *app
	session *vault.Session

	names  []string
	cursor int
	state  string

	textInputs []textinput.Model
	selected   *vault.OpenEntry
	name       string
	reveal     bool

	clearClipboard func()
	msg            string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
	labelStyle    = lipgloss.NewStyle().Width(13).Foreground(lipgloss.Color("8"))
)

func (a *app) newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse entries in an interactive view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock()
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := newModel(a, s)
			if err != nil {
				return a.log.ErrorfAndReturn("failed to list entries: %w", err)
			}
			p := tea.NewProgram(m, tea.WithInput(a.rawIn), tea.WithOutput(cmd.OutOrStdout()))
			final, err := p.Run()
			if err != nil {
				return fmt.Errorf("error running interactive view: %w", err)
			}
			if fm, ok := final.(model); ok && fm.clearClipboard != nil {
				fm.clearClipboard()
			}
			return nil
		},
	}
}

func newModel(a *app, s *vault.Session) (model, error) {
	m := model{
		app:     a,
		session: s,
		state:   stateTable,
	}
	if err := m.refresh(); err != nil {
		return model{}, err
	}
	return m, nil
}

// refresh reloads the sorted entry names and keeps the cursor in range.
func (m *model) refresh() error {
	names, err := m.session.List()
	if err != nil {
		return err
	}
	slices.Sort(names)
	m.names = names
	if m.cursor >= len(m.names) {
		m.cursor = max(len(m.names)-1, 0)
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(clearClipboardMsg); ok {
		if m.clearClipboard != nil {
			m.clearClipboard()
			m.clearClipboard = nil
			m.msg = "Clipboard cleared."
		}
		return m, nil
	}

	switch m.state {
	case stateTable:
		return updateTable(m, msg)
	case stateShowEntry:
		return updateShowEntry(m, msg)
	case stateAddEntry:
		return updateAddEntry(m, msg)
	default:
		return m, nil
	}
}

func (m model) View() string {
	switch m.state {
	case stateTable:
		return viewTable(m)
	case stateShowEntry:
		return viewShowEntry(m)
	case stateAddEntry:
		return viewAddEntry(m)
	default:
		return "Unknown state"
	}
}

func (m model) fail(err error) model {
	m.msg = errStyle.Render("Error: " + err.Error())
	return m
}

// copy puts the selected password on the clipboard and schedules clearing it.
func (m model) copy(name string) (model, tea.Cmd) {
	e, err := m.session.GetEntry(name)
	if err != nil {
		return m.fail(err), nil
	}
	if e == nil {
		return m.fail(fmt.Errorf("%w: %q", errEntryNotFound, name)), nil
	}
	clear, err := m.app.copySecret(e.Pw)
	if err != nil {
		return m.fail(err), nil
	}
	m.clearClipboard = clear

	seconds := m.app.cfg.ClipboardClearSeconds
	if seconds == 0 {
		m.msg = "Password copied!"
		return m, nil
	}
	m.msg = fmt.Sprintf("Password copied! (clears in %ds)", seconds)
	return m, tea.Tick(time.Duration(seconds)*time.Second, func(time.Time) tea.Msg {
		return clearClipboardMsg{}
	})
}

// --- Table ---
func updateTable(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.names)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a":
		m.textInputs = newEntryInputs()
		m.state = stateAddEntry
		m.msg = ""
	}

	if len(m.names) == 0 {
		return m, nil
	}
	name := m.names[m.cursor]

	switch key.String() {
	case "enter":
		e, err := m.session.GetEntry(name)
		if err != nil {
			return m.fail(err), nil
		}
		if e == nil {
			return m.fail(fmt.Errorf("%w: %q", errEntryNotFound, name)), nil
		}
		m.selected = e
		m.name = name
		m.reveal = false
		m.state = stateShowEntry
		m.msg = ""
	case "d":
		if err := m.session.RemoveEntry(name); err != nil {
			return m.fail(err), nil
		}
		if err := m.app.save(m.session.Container()); err != nil {
			return m.fail(err), nil
		}
		if err := m.refresh(); err != nil {
			return m.fail(err), nil
		}
		m.msg = fmt.Sprintf("Entry %s removed.", name)
	case "c":
		return m.copy(name)
	}
	return m, nil
}

func viewTable(m model) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("kapa entries") + "\n\n")
	if len(m.names) == 0 {
		s.WriteString("No entries yet. Press 'a' to add one.\n")
	}
	for i, name := range m.names {
		line := fmt.Sprintf("%-40s", name)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line + "\n")
	}
	if m.msg != "" {
		s.WriteString("\n" + msgStyle.Render(m.msg) + "\n")
	}
	s.WriteString("\nCommands: j/k=move, enter=show, a=add, d=delete, c=copy, q=quit")
	return s.String()
}

// --- Show Entry ---
func updateShowEntry(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "esc":
		m.state = stateTable
		m.selected = nil
		m.reveal = false
		m.msg = ""
	case "v":
		m.reveal = !m.reveal
	case "c":
		return m.copy(m.name)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func viewShowEntry(m model) string {
	e := m.selected
	secret := "********"
	if m.reveal {
		secret = e.Pw
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.name) + "\n\n")
	for _, row := range [][2]string{
		{"Description", e.Desc},
		{"User", e.User},
		{"Email", e.Email},
		{"Notes", e.Notes},
		{"Password", secret},
	} {
		s.WriteString(labelStyle.Render(row[0]) + row[1] + "\n")
	}
	if m.msg != "" {
		s.WriteString("\n" + msgStyle.Render(m.msg) + "\n")
	}
	s.WriteString("\nPress 'v' to toggle the password, 'c' to copy it, Esc to return")
	return s.String()
}

// --- Add Entry ---
func newEntryInputs() []textinput.Model {
	placeholders := []string{"Name", "Description", "User", "Email", "Notes", "Password"}
	inputs := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		ti := textinput.New()
		ti.Placeholder = p
		ti.CharLimit = 256
		if i == fieldPassword {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		inputs[i] = ti
	}
	inputs[fieldName].Focus()
	return inputs
}

func updateAddEntry(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			m.focusNext(false)
			return m, nil
		case "shift+tab", "up":
			m.focusNext(true)
			return m, nil
		case "esc":
			m.state = stateTable
			m.textInputs = nil
			m.msg = ""
			return m, nil
		case "ctrl+s":
			return saveAddEntry(m), nil
		case "enter":
			if m.textInputs[fieldPassword].Focused() {
				return saveAddEntry(m), nil
			}
			m.focusNext(false)
			return m, nil
		}
	}

	var cmds []tea.Cmd
	for i := range m.textInputs {
		if m.textInputs[i].Focused() {
			var cmd tea.Cmd
			m.textInputs[i], cmd = m.textInputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

// Focus next or previous input
func (m *model) focusNext(backward bool) {
	n := len(m.textInputs)
	for i := 0; i < n; i++ {
		if m.textInputs[i].Focused() {
			m.textInputs[i].Blur()
			if backward {
				m.textInputs[(i-1+n)%n].Focus()
			} else {
				m.textInputs[(i+1)%n].Focus()
			}
			break
		}
	}
}

func saveAddEntry(m model) model {
	name := strings.TrimSpace(m.textInputs[fieldName].Value())
	if name == "" {
		m.msg = errStyle.Render("Name must not be empty")
		return m
	}
	e := vault.OpenEntry{
		Desc:  m.textInputs[fieldDesc].Value(),
		User:  m.textInputs[fieldUser].Value(),
		Email: m.textInputs[fieldEmail].Value(),
		Notes: m.textInputs[fieldNotes].Value(),
		Pw:    m.textInputs[fieldPassword].Value(),
	}
	if err := m.session.AddEntry(name, e); err != nil {
		if errors.Is(err, vault.ErrDuplicateEntry) {
			m.msg = errStyle.Render(fmt.Sprintf("Entry %s already exists", name))
			return m
		}
		return m.fail(err)
	}
	if err := m.app.save(m.session.Container()); err != nil {
		return m.fail(err)
	}
	if err := m.refresh(); err != nil {
		return m.fail(err)
	}

	m.cursor = slices.Index(m.names, name)
	m.state = stateTable
	m.textInputs = nil
	m.msg = fmt.Sprintf("Entry %s added.", name)
	return m
}

func viewAddEntry(m model) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Add New Entry") + "\n\n")
	for i, ti := range m.textInputs {
		s.WriteString(labelStyle.Render(ti.Placeholder) + ti.View() + "\n")
		if i < len(m.textInputs)-1 {
			s.WriteString("\n")
		}
	}
	if m.msg != "" {
		s.WriteString("\n" + m.msg + "\n")
	}
	s.WriteString("\nTab to move, Enter on the password to save, Esc to cancel")
	return s.String()
}
