// Package tui is the interactive task tree for a linked workspace.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"todosync/backend"
	"todosync/internal/syncer"
	"todosync/internal/tree"
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeStatus
	ModeConfirmDelete
	ModeHelp
)

// row is one visible line of the tree.
type row struct {
	node  *tree.Node
	depth int
}

// Model represents the TUI state
type Model struct {
	actions Actions
	display *tree.Model
	ctx     context.Context
	title   string

	rows   []row
	cursor int

	mode         Mode
	textInput    textinput.Model
	statusCursor int
	statusItem   *tree.Item

	busy    bool
	message string
	err     error

	width  int
	height int

	headerStyle    lipgloss.Style
	categoryStyle  lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	descStyle      lipgloss.Style
	helpStyle      lipgloss.Style
	errorStyle     lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
}

// Message types
type syncedMsg struct {
	result *syncer.SyncResult
	err    error
}

type actionDoneMsg struct {
	message string
	err     error
}

// New creates a TUI over display. title names the workspace in the header.
func New(ctx context.Context, actions Actions, display *tree.Model, title string) *Model {
	ti := textinput.New()
	ti.Placeholder = "New task name..."
	ti.CharLimit = 256

	m := &Model{
		actions:   actions,
		display:   display,
		ctx:       ctx,
		title:     title,
		textInput: ti,
		mode:      ModeNormal,
		headerStyle: lipgloss.NewStyle().
			Bold(true),
		categoryStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		descStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
	m.rebuild()
	return m
}

// Init starts with a sync.
func (m *Model) Init() tea.Cmd {
	m.busy = true
	return m.sync()
}

func (m *Model) sync() tea.Cmd {
	return func() tea.Msg {
		result, err := m.actions.Sync(m.ctx)
		return syncedMsg{result, err}
	}
}

func (m *Model) run(done string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		if err := fn(m.ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{message: done}
	}
}

// rebuild flattens the display tree into rows, keeping the cursor in range.
func (m *Model) rebuild() {
	m.rows = m.rows[:0]
	for _, root := range m.display.Roots() {
		m.rows = append(m.rows, row{node: root})
		for _, child := range root.Children {
			m.rows = append(m.rows, row{node: child, depth: 1})
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selectedItem returns the task under the cursor, or nil on a category.
func (m *Model) selectedItem() *tree.Item {
	if m.cursor >= len(m.rows) {
		return nil
	}
	n := m.rows[m.cursor].node
	if n.Kind != tree.TaskNode {
		return nil
	}
	it := *n.Item
	return &it
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case syncedMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil && msg.result != nil {
			switch msg.result.State {
			case syncer.SyncNotLinked:
				m.message = "Workspace is not linked. Run 'todosync link' first."
			case syncer.SyncNoCredential:
				m.message = "Notion API key is not set. Run 'todosync apikey set' first."
			default:
				m.message = ""
			}
		}
		m.rebuild()
		return m, nil

	case actionDoneMsg:
		m.busy = false
		m.err = msg.err
		if syncer.IsCancelled(msg.err) {
			m.err = nil
		}
		if msg.err == nil {
			m.message = msg.message
		}
		m.rebuild()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeStatus:
			return m.handleStatusMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}
		return m.handleNormalMode(msg)
	}

	if m.mode == ModeAdd {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "enter":
		if item := m.selectedItem(); item != nil && !m.busy {
			m.statusItem = item
			m.statusCursor = 0
			for i, opt := range statusOptions(*item) {
				if opt.Name == item.Task.Status {
					m.statusCursor = i
				}
			}
			m.mode = ModeStatus
		}

	case "a":
		if !m.busy {
			m.mode = ModeAdd
			m.textInput.Reset()
			m.textInput.Focus()
			return m, textinput.Blink
		}

	case "d":
		if m.selectedItem() != nil && !m.busy {
			m.mode = ModeConfirmDelete
		}

	case "h":
		if m.display.ToggleHideCompleted() {
			m.message = "Hiding completed tasks"
		} else {
			m.message = "Showing completed tasks"
		}
		m.rebuild()

	case "r":
		if !m.busy {
			m.busy = true
			m.message = "Syncing..."
			return m, m.sync()
		}

	case "?":
		m.mode = ModeHelp
	}
	return m, nil
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		title := strings.TrimSpace(m.textInput.Value())
		m.mode = ModeNormal
		if title == "" {
			return m, nil
		}
		return m, m.run(fmt.Sprintf("Task %q added.", title), func(ctx context.Context) error {
			return m.actions.AddTask(ctx, title)
		})

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleStatusMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	options := statusOptions(*m.statusItem)

	switch msg.String() {
	case "up", "k":
		if m.statusCursor > 0 {
			m.statusCursor--
		}
	case "down", "j":
		if m.statusCursor < len(options)-1 {
			m.statusCursor++
		}
	case "enter":
		m.mode = ModeNormal
		item := *m.statusItem
		status := options[m.statusCursor].Name
		if status == item.Task.Status {
			return m, nil
		}
		return m, m.run(fmt.Sprintf("Updated %q to %s", item.Task.Title, status), func(ctx context.Context) error {
			return m.actions.SetStatus(ctx, item, status)
		})
	case "esc", "q":
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		item := m.selectedItem()
		if item == nil {
			return m, nil
		}
		it := *item
		return m, m.run(fmt.Sprintf("Deleted %q", it.Task.Title), func(ctx context.Context) error {
			return m.actions.DeleteTask(ctx, it)
		})
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

func statusOptions(item tree.Item) []backend.StatusOption {
	if item.Binding.HasStatusCache() {
		return item.Binding.StatusOptions
	}
	return backend.DefaultStatusOptions()
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderAddDialog()
	case ModeStatus:
		return m.renderStatusDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	}

	var b strings.Builder
	header := m.headerStyle.Render(m.title)
	if summary := m.display.Summary(); summary != "" {
		header += " " + m.descStyle.Render(summary)
	}
	b.WriteString(header + "\n\n")

	if len(m.rows) == 0 {
		b.WriteString(m.descStyle.Render("  No tasks") + "\n")
	}
	for i, r := range m.rows {
		b.WriteString(m.renderRow(r, i == m.cursor) + "\n")
	}

	b.WriteString("\n" + m.renderStatusBar())
	return b.String()
}

func (m *Model) renderRow(r row, selected bool) string {
	cursor := "  "
	if selected {
		cursor = "> "
	}
	indent := strings.Repeat("  ", r.depth)
	n := r.node

	if n.Kind == tree.CategoryNode {
		label := m.categoryStyle.Render(n.Label)
		return cursor + indent + label + " " + m.descStyle.Render(n.Description())
	}

	title := n.Label
	switch {
	case n.Item.Completed():
		title = m.completedStyle.Render(title)
	case selected:
		title = m.selectedStyle.Render(title)
	}
	return cursor + indent + n.Item.Glyph() + " " + title + " " + m.descStyle.Render(n.Description())
}

func (m *Model) renderStatusBar() string {
	left := m.message
	switch {
	case m.err != nil:
		left = m.errorStyle.Render(errorLine(m.err))
	case m.busy && left == "":
		left = "Syncing..."
	}

	right := "enter:status  a:add  d:delete  h:hide done  r:sync  q:quit"
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

// errorLine is the first line of err, dropping suggestion text.
func errorLine(err error) string {
	msg := err.Error()
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		msg = be.Message
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func (m *Model) renderAddDialog() string {
	dialog := m.dialogStyle.Render(
		"Add New Task\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: confirm  Esc: cancel"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderStatusDialog() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "Change status for %q\n\n", m.statusItem.Task.Title)
	for i, opt := range statusOptions(*m.statusItem) {
		cursor := "  "
		if i == m.statusCursor {
			cursor = "> "
		}
		line := backend.ColorGlyph(opt.Color) + " " + opt.Name
		if opt.Name == m.statusItem.Task.Status {
			line += " (current)"
		}
		if i == m.statusCursor {
			line = m.selectedStyle.Render(line)
		}
		b.WriteString(cursor + line + "\n")
	}
	b.WriteString("\n" + m.helpStyle.Render("Enter: select  Esc: cancel"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := ""
	if item := m.selectedItem(); item != nil {
		title = item.Task.Title
	}
	dialog := m.dialogStyle.Render(
		fmt.Sprintf("Delete task %q?\n\n", title) +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up

Actions:
  Enter  Change task status
  a      Add new task
  d      Delete task (with confirm)
  h      Hide/show completed tasks
  r      Sync now

General:
  ?      Show this help
  q      Quit

Press any key to close`

	return m.centerDialog(m.dialogStyle.Render(help))
}

func (m *Model) centerDialog(dialog string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
