package backend

import (
	"context"
	"strings"
	"time"
)

// Task represents a task record as fetched from the remote store.
// Tasks are immutable per fetch; edits go through RemoteStore mutations.
type Task struct {
	ID             string
	Title          string
	Status         string
	Category       string // Empty when the task has no category
	LastEditedTime *time.Time
}

// StatusOption is a named, colored status value. The position of an option in
// its slice defines the sort priority of tasks carrying that status.
type StatusOption struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Default status names used when a database has no typed status field.
const (
	StatusNotStarted = "Not started"
	StatusInProgress = "In progress"
	StatusDone       = "Done"
)

// DefaultStatusOptions returns the fallback status set for databases without a
// typed status field.
func DefaultStatusOptions() []StatusOption {
	return []StatusOption{
		{Name: StatusNotStarted, Color: "gray"},
		{Name: StatusInProgress, Color: "blue"},
		{Name: StatusDone, Color: "green"},
	}
}

// TrackedProject binds a local workspace path to a remote database and a
// project filter. The path is the unique key.
type TrackedProject struct {
	Path          string         `json:"path"`
	DatabaseID    string         `json:"database_id"`
	ProjectName   string         `json:"project_name"`
	StatusOptions []StatusOption `json:"status_options,omitempty"` // nil until cached
}

// QuotaKey identifies the (database, project) pair a binding counts against
// for license quota purposes.
func (p TrackedProject) QuotaKey() string {
	return p.DatabaseID + "::" + p.ProjectName
}

// HasStatusCache reports whether status options have been cached for the binding.
func (p TrackedProject) HasStatusCache() bool {
	return len(p.StatusOptions) > 0
}

// Database is an accessible logical database.
type Database struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ProjectOption is a project usable as a filter, with its remote id when the
// project is a related page.
type ProjectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskQuery controls a task listing.
type TaskQuery struct {
	PageSize      int
	ProjectFilter string        // Empty means no project filtering
	Shape         DatabaseShape // Optional pre-resolved shape
}

// CreateTaskRequest describes a task to create. ProjectID and Shape are
// optional pre-resolved values that spare lookups during bulk creation. When
// Shape is set, a relation project is linked only through ProjectID.
type CreateTaskRequest struct {
	Title       string
	Status      string
	ProjectName string
	ProjectID   string
	Category    string
	Priority    string
	Due         string // YYYY-MM-DD
	Shape       DatabaseShape
}

// RemoteStore is the contract the sync orchestrator needs from a remote
// workspace database service.
type RemoteStore interface {
	ListDatabases(ctx context.Context) ([]Database, error)
	GetDatabaseShape(ctx context.Context, databaseID string) (DatabaseShape, error)
	GetTasks(ctx context.Context, databaseID string, query TaskQuery) ([]Task, error)
	GetStatusOptions(ctx context.Context, databaseID string) ([]StatusOption, error)

	// Auxiliary lookups degrade to empty/false instead of failing.
	GetProjectOptions(ctx context.Context, databaseID string) []string
	GetProjectOptionsWithIDs(ctx context.Context, databaseID string) []ProjectOption
	HasProjectProperty(ctx context.Context, databaseID string) bool

	UpdateStatus(ctx context.Context, taskID, status string) error
	DeleteTask(ctx context.Context, taskID string) error // Archives, never erases
	CreateTask(ctx context.Context, databaseID string, req CreateTaskRequest) (string, error)
}

// FindProjectByName returns the project option with the exact given name, or nil.
func FindProjectByName(projects []ProjectOption, name string) *ProjectOption {
	for i := range projects {
		if projects[i].Name == name {
			return &projects[i]
		}
	}
	return nil
}

// statusGlyphs maps remote option colors to display glyphs.
var statusGlyphs = map[string]string{
	"default": "⚪",
	"gray":    "⚪",
	"brown":   "🟤",
	"orange":  "🟠",
	"yellow":  "🟡",
	"green":   "🟢",
	"blue":    "🔵",
	"purple":  "🟣",
	"pink":    "🩷",
	"red":     "🔴",
}

// fallbackGlyphs is used when no status option matches the status name.
var fallbackGlyphs = map[string]string{
	StatusNotStarted: "⚪",
	StatusInProgress: "🔵",
	StatusDone:       "🟢",
}

// DefaultGlyph is shown for unknown colors and unknown statuses.
const DefaultGlyph = "⚪"

// ColorGlyph maps a status color to its glyph.
func ColorGlyph(color string) string {
	if g, ok := statusGlyphs[strings.ToLower(color)]; ok {
		return g
	}
	return DefaultGlyph
}

// StatusEmoji returns the glyph for a status. The matching option's color wins;
// without a match the three default status names have fixed glyphs.
func StatusEmoji(statusName string, options []StatusOption) string {
	for _, opt := range options {
		if opt.Name == statusName {
			return ColorGlyph(opt.Color)
		}
	}
	if g, ok := fallbackGlyphs[statusName]; ok {
		return g
	}
	return DefaultGlyph
}

// StatusNames returns the option names in declared order.
func StatusNames(options []StatusOption) []string {
	names := make([]string, len(options))
	for i, opt := range options {
		names[i] = opt.Name
	}
	return names
}
