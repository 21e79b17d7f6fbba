package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"todosync/backend"
	"todosync/internal/syncer"
	"todosync/internal/tree"
)

// =============================================================================
// Test Helpers
// =============================================================================

func console(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return &Console{Reader: strings.NewReader(input), Writer: &out}, &out
}

func items() []tree.Item {
	b := backend.TrackedProject{Path: "/w", StatusOptions: backend.DefaultStatusOptions()}
	return []tree.Item{
		{Task: backend.Task{ID: "1", Title: "Buy groceries", Status: "Not started"}, Binding: b},
		{Task: backend.Task{ID: "2", Title: "Fix bug in parser", Status: "In progress", Category: "Code"}, Binding: b},
		{Task: backend.Task{ID: "3", Title: "Buy milk", Status: "Done"}, Binding: b},
	}
}

// =============================================================================
// Console
// =============================================================================

func TestConsoleSelect(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{"first", "1\n", 0, nil},
		{"last", "3\n", 2, nil},
		{"retries invalid input", "abc\n9\n2\n", 1, nil},
		{"zero cancels", "0\n", 0, ErrSelectionCancelled},
		{"end of input cancels", "", 0, ErrSelectionCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out := console(tt.input)
			got, err := c.Select("Pick one", []string{"a", "b", "c"})
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Fatalf("Select() = %d, %v; want %d, %v", got, err, tt.want, tt.wantErr)
			}
			if !strings.Contains(out.String(), "  2) b") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestConsoleCancellationIsSyncerCancel(t *testing.T) {
	c, _ := console("0\n")
	_, err := c.Select("Pick", []string{"a", "b"})
	if !syncer.IsCancelled(err) {
		t.Errorf("error %v should be recognized as an operator cancellation", err)
	}
}

func TestConsoleSharesInputAcrossPrompts(t *testing.T) {
	c, _ := console("2\nnew name\ny\n")

	idx, err := c.Select("Pick", []string{"a", "b"})
	if err != nil || idx != 1 {
		t.Fatalf("Select() = %d, %v", idx, err)
	}
	name, err := c.Input("Name", "default")
	if err != nil || name != "new name" {
		t.Fatalf("Input() = %q, %v", name, err)
	}
	ok, err := c.Confirm("Sure?")
	if err != nil || !ok {
		t.Fatalf("Confirm() = %v, %v", ok, err)
	}
}

func TestConsoleInputDefault(t *testing.T) {
	c, out := console("\n")
	got, err := c.Input("Enter new project name", "api")
	if err != nil || got != "api" {
		t.Errorf("Input() = %q, %v", got, err)
	}
	if !strings.Contains(out.String(), "Enter new project name [api]: ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsoleConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"maybe\nno\n", false},
		{"maybe\ny\n", true},
		{"", false},
	}
	for _, tt := range tests {
		c, _ := console(tt.input)
		if got, _ := c.Confirm("Delete?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConsoleShouldRetry(t *testing.T) {
	c, out := console("y\n")
	if !c.ShouldRetry("Sync", errors.New("boom")) {
		t.Error("expected retry")
	}
	if !strings.Contains(out.String(), "Sync failed - boom") {
		t.Errorf("output = %q", out.String())
	}
}

func TestNoPromptBypass(t *testing.T) {
	c := &Console{NoPrompt: true}

	if _, err := c.Select("Pick", []string{"a", "b"}); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("Select() error = %v", err)
	}
	if idx, err := c.Select("Pick", []string{"only"}); err != nil || idx != 0 {
		t.Errorf("single option should auto-select, got %d, %v", idx, err)
	}
	if v, _ := c.Input("Name", "fallback"); v != "fallback" {
		t.Errorf("Input() = %q", v)
	}
	if ok, _ := c.Confirm("Sure?"); !ok {
		t.Error("Confirm() should auto-accept")
	}
	if c.ShouldRetry("Sync", errors.New("boom")) {
		t.Error("ShouldRetry() should decline")
	}
	if _, err := (&InteractiveAdder{Console: c}).Run(); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("InteractiveAdder error = %v", err)
	}
}

// =============================================================================
// TaskSelector
// =============================================================================

func TestTaskSelectorFilters(t *testing.T) {
	t.Run("filter then select", func(t *testing.T) {
		c, _ := console("buy\n2\n")
		got, err := (&TaskSelector{Items: items(), Prompt: "Select task:", Console: c}).Run()
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		// Sorted by status: "Buy groceries" (Not started) before "Buy milk" (Done).
		if got.Task.ID != "3" {
			t.Errorf("selected %q", got.Task.Title)
		}
	})

	t.Run("unique match auto-selects", func(t *testing.T) {
		c, out := console("PARSER\n")
		got, err := (&TaskSelector{Items: items(), Console: c}).Run()
		if err != nil || got.Task.ID != "2" {
			t.Fatalf("Run() = %+v, %v", got, err)
		}
		if !strings.Contains(out.String(), "Auto-selected: Fix bug in parser") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("no match", func(t *testing.T) {
		c, _ := console("zzz\n")
		if _, err := (&TaskSelector{Items: items(), Console: c}).Run(); !errors.Is(err, ErrNoMatches) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		c, _ := console("")
		if _, err := (&TaskSelector{Console: c}).Run(); !errors.Is(err, ErrNoTasks) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestFormatTaskLine(t *testing.T) {
	got := formatTaskLine(items()[1])
	if got != "🔵 Fix bug in parser [In progress, category: Code]" {
		t.Errorf("formatTaskLine() = %q", got)
	}
}

// =============================================================================
// InteractiveAdder
// =============================================================================

func TestInteractiveAddMode(t *testing.T) {
	c, out := console("\nWrite docs\nDocs\nsoon\n2026-04-01\n")
	fields, err := (&InteractiveAdder{Console: c}).Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fields.Title != "Write docs" || fields.Category != "Docs" || fields.Due != "2026-04-01" {
		t.Errorf("fields = %+v", fields)
	}
	if !strings.Contains(out.String(), "Title cannot be empty.") || !strings.Contains(out.String(), "Invalid date: soon") {
		t.Errorf("output = %q", out.String())
	}
}
