package tui_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"todosync/backend"
	"todosync/internal/syncer"
	"todosync/internal/tree"
	"todosync/internal/tui"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

func sendRunesAndWait(tm *teatest.TestModel, runes string) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(runes)})
}

// fakeActions mimics the orchestrator: every write resyncs the display.
type fakeActions struct {
	mu      sync.Mutex
	display *tree.Model
	tasks   []backend.Task
	state   syncer.SyncState
	failAdd error

	added    []string
	deleted  []string
	statuses map[string]string
}

var binding = backend.TrackedProject{
	Path:          "/work/api",
	DatabaseID:    "db1",
	StatusOptions: backend.DefaultStatusOptions(),
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		display: tree.NewModel(false),
		tasks: []backend.Task{
			{ID: "t1", Title: "Review PR", Status: "In progress", Category: "Code"},
			{ID: "t2", Title: "Write tests", Status: "Not started", Category: "Code"},
			{ID: "t3", Title: "Buy groceries", Status: "Done"},
		},
		statuses: map[string]string{},
	}
}

func (f *fakeActions) resync() {
	items := make([]tree.Item, len(f.tasks))
	for i, t := range f.tasks {
		items[i] = tree.Item{Task: t, Binding: binding}
	}
	f.display.SetItems(items)
}

func (f *fakeActions) Sync(ctx context.Context) (*syncer.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == syncer.SyncNotLinked {
		f.display.Clear()
		return &syncer.SyncResult{State: syncer.SyncNotLinked}, nil
	}
	f.resync()
	return &syncer.SyncResult{State: syncer.SyncDone}, nil
}

func (f *fakeActions) AddTask(ctx context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return f.failAdd
	}
	f.added = append(f.added, title)
	f.tasks = append(f.tasks, backend.Task{ID: "new", Title: title, Status: "Not started"})
	f.resync()
	return nil
}

func (f *fakeActions) DeleteTask(ctx context.Context, item tree.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, item.Task.ID)
	for i, t := range f.tasks {
		if t.ID == item.Task.ID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			break
		}
	}
	f.resync()
	return nil
}

func (f *fakeActions) SetStatus(ctx context.Context, item tree.Item, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[item.Task.ID] = status
	for i := range f.tasks {
		if f.tasks[i].ID == item.Task.ID {
			f.tasks[i].Status = status
		}
	}
	f.resync()
	return nil
}

func (f *fakeActions) snapshot() (added, deleted []string, statuses map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := make(map[string]string, len(f.statuses))
	for k, v := range f.statuses {
		s[k] = v
	}
	return append([]string(nil), f.added...), append([]string(nil), f.deleted...), s
}

// start runs the model until the tree is drawn and returns the output read
// so far, since WaitFor consumes it from tm.Output().
func start(t *testing.T, fa *fakeActions) (*teatest.TestModel, []byte) {
	t.Helper()
	model := tui.New(context.Background(), fa, fa.display, "api")
	tm := teatest.NewTestModel(t, model, teatest.WithInitialTermSize(100, 30))
	var seen []byte
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		seen = append(seen[:0], b...)
		return bytes.Contains(b, []byte("Review PR"))
	}, teatest.WithDuration(2*time.Second))
	return tm, seen
}

// update drives the model directly and runs the resulting command.
func update(m tea.Model, msg tea.Msg) tea.Model {
	m, cmd := m.Update(msg)
	if cmd != nil {
		if next := cmd(); next != nil {
			m, _ = m.Update(next)
		}
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// =============================================================================
// Rendering
// =============================================================================

func TestTUIRendersTree(t *testing.T) {
	tm, frame := start(t, newFakeActions())
	sendRunesAndWait(tm, "q")
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	out := string(frame)
	for _, want := range []string{"api", "1/3 tasks", "Code", "0/2", "Review PR", "Write tests", "Buy groceries", "🔵", "🟢"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestTUINotLinkedMessage(t *testing.T) {
	fa := newFakeActions()
	fa.state = syncer.SyncNotLinked

	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	view := model.View()
	if !strings.Contains(view, "not linked") || !strings.Contains(view, "No tasks") {
		t.Errorf("view = %q", view)
	}
}

// =============================================================================
// Actions
// =============================================================================

func TestTUIToggleStatus(t *testing.T) {
	fa := newFakeActions()
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	// Rows: Code, Write tests (Not started), Review PR (In progress), Buy groceries.
	model = update(model, key("down"))
	model = update(model, key("enter"))
	if view := model.View(); !strings.Contains(view, `Change status for "Write tests"`) || !strings.Contains(view, "Not started (current)") {
		t.Fatalf("status picker not shown: %q", view)
	}

	model = update(model, key("down"))
	model = update(model, key("enter"))

	_, _, statuses := fa.snapshot()
	if statuses["t2"] != "In progress" {
		t.Errorf("statuses = %v", statuses)
	}
	if view := model.View(); !strings.Contains(view, `Updated "Write tests" to In progress`) {
		t.Errorf("view = %q", view)
	}
}

func TestTUIEnterOnCategoryDoesNothing(t *testing.T) {
	fa := newFakeActions()
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	model = update(model, key("enter"))
	if strings.Contains(model.View(), "Change status") {
		t.Error("status picker opened on a category row")
	}
}

func TestTUIAddTask(t *testing.T) {
	fa := newFakeActions()
	tm, _ := start(t, fa)

	sendRunesAndWait(tm, "a")
	sendRunesAndWait(tm, "Ship release")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte(`Task "Ship release" added.`))
	}, teatest.WithDuration(2*time.Second))
	sendRunesAndWait(tm, "q")
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	added, _, _ := fa.snapshot()
	if len(added) != 1 || added[0] != "Ship release" {
		t.Errorf("added = %v", added)
	}
}

func TestTUIAddTaskError(t *testing.T) {
	fa := newFakeActions()
	fa.failAdd = &backend.Error{Kind: backend.KindAuth, Message: "Invalid Notion API key. Please check your API key."}
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	model = update(model, key("a"))
	for _, r := range "x" {
		model = update(model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	model = update(model, key("enter"))

	if view := model.View(); !strings.Contains(view, "Invalid Notion API key") {
		t.Errorf("error not shown: %q", view)
	}
}

func TestTUIDeleteWithConfirm(t *testing.T) {
	fa := newFakeActions()
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	model = update(model, key("down"))
	model = update(model, key("d"))
	model = update(model, key("n"))
	if _, deleted, _ := fa.snapshot(); len(deleted) != 0 {
		t.Fatalf("deleted without confirmation: %v", deleted)
	}

	model = update(model, key("d"))
	if !strings.Contains(model.View(), `Delete task "Write tests"?`) {
		t.Fatalf("confirm dialog missing: %q", model.View())
	}
	model = update(model, key("y"))

	if _, deleted, _ := fa.snapshot(); len(deleted) != 1 || deleted[0] != "t2" {
		t.Errorf("deleted = %v", deleted)
	}
	for _, it := range fa.display.Items() {
		if it.Task.ID == "t2" {
			t.Error("deleted task still displayed")
		}
	}
	if !strings.Contains(model.View(), `Deleted "Write tests"`) {
		t.Errorf("view = %q", model.View())
	}
}

func TestTUIHideCompleted(t *testing.T) {
	fa := newFakeActions()
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	model = update(model, key("h"))
	if strings.Contains(model.View(), "Buy groceries") || !fa.display.HideCompleted() {
		t.Error("completed task still shown")
	}
	model = update(model, key("h"))
	if !strings.Contains(model.View(), "Buy groceries") {
		t.Error("completed task not restored")
	}
}

func TestTUIResync(t *testing.T) {
	fa := newFakeActions()
	m := tui.New(context.Background(), fa, fa.display, "api")
	var model tea.Model = m
	model = update(model, m.Init()())

	fa.mu.Lock()
	fa.tasks = append(fa.tasks, backend.Task{ID: "t4", Title: "Added elsewhere", Status: "Not started"})
	fa.mu.Unlock()

	model = update(model, key("r"))
	if !strings.Contains(model.View(), "Added elsewhere") {
		t.Error("sync did not pick up the new task")
	}
}

// =============================================================================
// Operator
// =============================================================================

func TestOperatorAnswers(t *testing.T) {
	op := tui.NewOperator()
	if ok, _ := op.Confirm("Delete?"); !ok {
		t.Error("Confirm should accept; the TUI already asked")
	}
	if op.ShouldRetry("Sync", errors.New("x")) {
		t.Error("ShouldRetry should decline; the TUI retries with r")
	}
	if _, err := op.Select("Pick", []string{"a", "b"}); !syncer.IsCancelled(err) {
		t.Errorf("Select error = %v", err)
	}
	if v, _ := op.Input("Name", "folder"); v != "folder" {
		t.Errorf("Input = %q", v)
	}
}
