// Package tree turns the synced task list into the two-level display tree:
// categories containing tasks, with uncategorized tasks at the root.
package tree

import (
	"sort"
	"sync/atomic"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"todosync/backend"
)

// unknownStatusRank sorts statuses missing from the declared options last.
const unknownStatusRank = 99

// Item is a display record: a fetched task plus the binding it came from.
type Item struct {
	Task    backend.Task           `json:"task"`
	Binding backend.TrackedProject `json:"binding"`
}

// Completed reports whether the task counts as done.
func (i Item) Completed() bool {
	return i.Task.Status == backend.StatusDone
}

// Glyph returns the status glyph of the item under its binding's options.
func (i Item) Glyph() string {
	return backend.StatusEmoji(i.Task.Status, i.Binding.StatusOptions)
}

// NodeKind distinguishes category nodes from task nodes.
type NodeKind int

const (
	CategoryNode NodeKind = iota
	TaskNode
)

// Node is one entry of the display tree.
type Node struct {
	Kind     NodeKind
	Label    string // Category name or task title
	Items    []Item // Category: sorted visible tasks
	Item     *Item  // Task: the record, passed to the toggle-status command
	Children []*Node
}

// Description is "completed/total" for categories and the status name for tasks.
func (n *Node) Description() string {
	if n.Kind == TaskNode {
		return n.Item.Task.Status
	}
	completed, total := Progress(n.Items)
	return formatFraction(completed, total)
}

// Progress counts completed and total items.
func Progress(items []Item) (completed, total int) {
	for _, it := range items {
		if it.Completed() {
			completed++
		}
	}
	return completed, len(items)
}

// Build groups items into category nodes in order of first appearance,
// followed by uncategorized task nodes. Completed tasks are dropped when
// hideCompleted is set, and categories left empty are omitted.
func Build(items []Item, hideCompleted bool) []*Node {
	var order []string
	byCategory := make(map[string][]Item)
	var uncategorized []Item

	for _, it := range items {
		if hideCompleted && it.Completed() {
			continue
		}
		cat := it.Task.Category
		if cat == "" {
			uncategorized = append(uncategorized, it)
			continue
		}
		if _, ok := byCategory[cat]; !ok {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], it)
	}

	roots := make([]*Node, 0, len(order)+len(uncategorized))
	for _, cat := range order {
		tasks := SortItems(byCategory[cat])
		if len(tasks) == 0 {
			continue
		}
		node := &Node{Kind: CategoryNode, Label: cat, Items: tasks}
		for i := range tasks {
			node.Children = append(node.Children, taskNode(&tasks[i]))
		}
		roots = append(roots, node)
	}

	rest := SortItems(uncategorized)
	for i := range rest {
		roots = append(roots, taskNode(&rest[i]))
	}
	return roots
}

func taskNode(it *Item) *Node {
	return &Node{Kind: TaskNode, Label: it.Task.Title, Item: it}
}

// SortItems returns a sorted copy: by the status's position in the item's
// binding options (unknown statuses last), then by case-insensitive,
// locale-aware title order. Ties keep their input order.
func SortItems(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)

	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := statusRank(sorted[i]), statusRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return col.CompareString(sorted[i].Task.Title, sorted[j].Task.Title) < 0
	})
	return sorted
}

func statusRank(it Item) int {
	for idx, opt := range it.Binding.StatusOptions {
		if opt.Name == it.Task.Status {
			return idx
		}
	}
	return unknownStatusRank
}

// Model holds the current display list. The list is replaced wholesale on
// every sync, so readers always see one complete snapshot.
type Model struct {
	items         atomic.Pointer[[]Item]
	hideCompleted atomic.Bool
}

// NewModel creates an empty model.
func NewModel(hideCompleted bool) *Model {
	m := &Model{}
	m.hideCompleted.Store(hideCompleted)
	empty := []Item{}
	m.items.Store(&empty)
	return m
}

// SetItems replaces the display list with a copy of items.
func (m *Model) SetItems(items []Item) {
	snapshot := make([]Item, len(items))
	copy(snapshot, items)
	m.items.Store(&snapshot)
}

// Clear empties the display list.
func (m *Model) Clear() {
	m.SetItems(nil)
}

// Items returns a copy of the current display list.
func (m *Model) Items() []Item {
	current := *m.items.Load()
	out := make([]Item, len(current))
	copy(out, current)
	return out
}

// HideCompleted reports whether completed tasks are hidden.
func (m *Model) HideCompleted() bool {
	return m.hideCompleted.Load()
}

// SetHideCompleted sets the completed-task filter.
func (m *Model) SetHideCompleted(hide bool) {
	m.hideCompleted.Store(hide)
}

// ToggleHideCompleted flips the completed-task filter and returns the new value.
func (m *Model) ToggleHideCompleted() bool {
	for {
		old := m.hideCompleted.Load()
		if m.hideCompleted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Roots builds the display tree from the current snapshot.
func (m *Model) Roots() []*Node {
	return Build(*m.items.Load(), m.HideCompleted())
}

// Summary describes overall progress as "completed/total task(s)", or ""
// when there are no tasks.
func (m *Model) Summary() string {
	completed, total := Progress(*m.items.Load())
	return SummaryOf(completed, total)
}

// SummaryOf formats overall progress.
func SummaryOf(completed, total int) string {
	if total == 0 {
		return ""
	}
	noun := "tasks"
	if total == 1 {
		noun = "task"
	}
	return formatFraction(completed, total) + " " + noun
}
