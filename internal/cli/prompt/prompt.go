// Package prompt handles interactive prompts with no-prompt mode support.
// Console is the terminal operator for sync operations; TaskSelector and
// InteractiveAdder collect a task reference or new task fields when the
// command line leaves them out.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"todosync/internal/syncer"
	"todosync/internal/tree"
	"todosync/internal/utils"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = fmt.Errorf("selection cancelled: %w", syncer.ErrCancelled)
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
)

// Console asks the operator through a line-oriented terminal. In no-prompt
// mode confirmations are accepted, inputs take their default, retries are
// declined and selections fail with ErrNoPromptMode.
type Console struct {
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool

	scanner *bufio.Scanner
}

var _ syncer.Operator = (*Console)(nil)

func (c *Console) out() io.Writer {
	if c.Writer == nil {
		return io.Discard
	}
	return c.Writer
}

// readLine reads one trimmed line. The scanner is kept across prompts so
// buffered input is not lost between them.
func (c *Console) readLine() (string, bool) {
	if c.Reader == nil {
		return "", false
	}
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.Reader)
	}
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

// Select shows numbered options and returns the chosen 0-based index.
// A single option is selected without asking.
func (c *Console) Select(title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, ErrSelectionCancelled
	}
	if len(options) == 1 {
		return 0, nil
	}
	if c.NoPrompt {
		return 0, ErrNoPromptMode
	}

	w := c.out()
	_, _ = fmt.Fprintln(w, title)
	for i, opt := range options {
		_, _ = fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}

	for {
		_, _ = fmt.Fprintf(w, "Select (0 to cancel): ")
		input, ok := c.readLine()
		if !ok {
			return 0, ErrSelectionCancelled
		}
		num, err := strconv.Atoi(input)
		if err != nil || num < 0 || num > len(options) {
			_, _ = fmt.Fprintf(w, "Invalid selection: %s\n", input)
			continue
		}
		if num == 0 {
			return 0, ErrSelectionCancelled
		}
		return num - 1, nil
	}
}

// Input asks for a line of text. An empty answer returns defaultValue.
func (c *Console) Input(prompt, defaultValue string) (string, error) {
	if c.NoPrompt {
		return defaultValue, nil
	}
	w := c.out()
	if defaultValue != "" {
		_, _ = fmt.Fprintf(w, "%s [%s]: ", prompt, defaultValue)
	} else {
		_, _ = fmt.Fprintf(w, "%s: ", prompt)
	}
	input, ok := c.readLine()
	if !ok {
		return "", ErrSelectionCancelled
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// Confirm asks a yes/no question until it gets an answer. End of input
// counts as no.
func (c *Console) Confirm(message string) (bool, error) {
	if c.NoPrompt {
		return true, nil
	}
	w := c.out()
	for {
		_, _ = fmt.Fprintf(w, "%s (y/n): ", message)
		input, ok := c.readLine()
		if !ok {
			return false, nil
		}
		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// ShouldRetry shows the failure and offers Retry or Dismiss.
func (c *Console) ShouldRetry(op string, err error) bool {
	_, _ = fmt.Fprintf(c.out(), "%s failed - %v\n", op, err)
	if c.NoPrompt {
		return false
	}
	ok, _ := c.Confirm("Retry?")
	return ok
}

// Info prints an informational message.
func (c *Console) Info(message string) {
	_, _ = fmt.Fprintln(c.out(), message)
}

// Warn prints a warning.
func (c *Console) Warn(message string) {
	_, _ = fmt.Fprintf(c.out(), "Warning: %s\n", message)
}

// TaskSelector picks one of the displayed tasks by filter text and number.
type TaskSelector struct {
	Items    []tree.Item
	Prompt   string
	Console  *Console
	NoPrompt bool
}

// Run executes the task selection prompt.
// If NoPrompt is true, returns ErrNoPromptMode.
// If there is exactly one task, auto-selects it.
func (s *TaskSelector) Run() (*tree.Item, error) {
	if s.NoPrompt || s.Console.NoPrompt {
		return nil, ErrNoPromptMode
	}
	if len(s.Items) == 0 {
		return nil, ErrNoTasks
	}
	if len(s.Items) == 1 {
		return &s.Items[0], nil
	}

	w := s.Console.out()
	_, _ = fmt.Fprintf(w, "%s\nFilter (or press Enter to show all): ", s.Prompt)
	filter, ok := s.Console.readLine()
	if !ok {
		return nil, ErrSelectionCancelled
	}

	var filtered []tree.Item
	lower := strings.ToLower(filter)
	for _, it := range tree.SortItems(s.Items) {
		if filter == "" || strings.Contains(strings.ToLower(it.Task.Title), lower) {
			filtered = append(filtered, it)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}
	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(w, "Auto-selected: %s\n", filtered[0].Task.Title)
		return &filtered[0], nil
	}

	labels := make([]string, len(filtered))
	for i, it := range filtered {
		labels[i] = formatTaskLine(it)
	}
	idx, err := s.Console.Select("Matching tasks:", labels)
	if err != nil {
		return nil, err
	}
	return &filtered[idx], nil
}

// formatTaskLine shows glyph, title and the status and category of a task.
func formatTaskLine(it tree.Item) string {
	meta := []string{it.Task.Status}
	if it.Task.Category != "" {
		meta = append(meta, "category: "+it.Task.Category)
	}
	return fmt.Sprintf("%s %s [%s]", it.Glyph(), it.Task.Title, strings.Join(meta, ", "))
}

// AddFields holds the field values collected during interactive add mode.
type AddFields struct {
	Title    string
	Category string
	Due      string // YYYY-MM-DD
}

// InteractiveAdder prompts for the fields of a new task when no title is
// given on the command line.
type InteractiveAdder struct {
	Console *Console
}

// Run prompts for the title (required), category and due date.
func (a *InteractiveAdder) Run() (*AddFields, error) {
	if a.Console.NoPrompt {
		return nil, ErrNoPromptMode
	}
	w := a.Console.out()
	fields := &AddFields{}

	for {
		_, _ = fmt.Fprint(w, "Task title (required): ")
		title, ok := a.Console.readLine()
		if !ok {
			return nil, ErrSelectionCancelled
		}
		if title != "" {
			fields.Title = title
			break
		}
		_, _ = fmt.Fprintln(w, "Title cannot be empty.")
	}

	_, _ = fmt.Fprint(w, "Category (optional): ")
	if category, ok := a.Console.readLine(); ok {
		fields.Category = category
	}

	for {
		_, _ = fmt.Fprint(w, "Due date (YYYY-MM-DD, today, tomorrow, +Nd, optional): ")
		input, ok := a.Console.readLine()
		if !ok || input == "" {
			break
		}
		due, err := utils.ParseDueDate(input)
		if err != nil {
			_, _ = fmt.Fprintf(w, "Invalid date: %s. Use YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm\n", input)
			continue
		}
		fields.Due = due
		break
	}

	return fields, nil
}
