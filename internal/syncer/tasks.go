package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"todosync/backend"
	"todosync/internal/tree"
)

// AddTaskRequest describes a task added from the command line or the TUI.
type AddTaskRequest struct {
	Title    string
	Status   string // Empty uses the first cached status option
	Category string
	Priority string
	Due      string // YYYY-MM-DD
}

// MutationResult is the outcome of a single-task write.
type MutationResult struct {
	TaskID  string
	Changed bool
	Sync    *SyncResult
	SyncErr error
}

// AddTask creates a task in the database bound to path and resyncs.
func (s *Service) AddTask(ctx context.Context, path string, req AddTaskRequest) (*MutationResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, backend.NewValidationError("AddTask", "task title is required")
	}

	result := &MutationResult{Changed: true}
	err := s.withRetry(ctx, "Add task", func() error {
		binding, apiKey, err := s.resolve(ctx, path)
		if err != nil {
			return err
		}
		remote, err := s.newRemote(apiKey)
		if err != nil {
			return err
		}

		status := req.Status
		if status == "" {
			status = backend.StatusNotStarted
			if binding.HasStatusCache() {
				status = binding.StatusOptions[0].Name
			}
		}

		create := backend.CreateTaskRequest{
			Title:    title,
			Status:   status,
			Category: req.Category,
			Priority: req.Priority,
			Due:      req.Due,
		}
		if remote.HasProjectProperty(ctx, binding.DatabaseID) {
			create.ProjectName = binding.ProjectName
		}

		result.TaskID, err = remote.CreateTask(ctx, binding.DatabaseID, create)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.operator.Info(fmt.Sprintf("Task %q added.", title))
	result.Sync, result.SyncErr = s.SyncWorkspace(ctx, path)
	return result, nil
}

// DeleteTask archives the task after confirmation and resyncs the workspace
// the task came from.
func (s *Service) DeleteTask(ctx context.Context, item tree.Item) (*MutationResult, error) {
	ok, err := s.operator.Confirm(fmt.Sprintf("Delete task %q?", item.Task.Title))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	err = s.withRetry(ctx, "Delete task", func() error {
		remote, err := s.remoteFor(ctx)
		if err != nil {
			return err
		}
		return remote.DeleteTask(ctx, item.Task.ID)
	})
	if err != nil {
		return nil, err
	}

	s.operator.Info(fmt.Sprintf("Deleted %q", item.Task.Title))
	result := &MutationResult{TaskID: item.Task.ID, Changed: true}
	result.Sync, result.SyncErr = s.resyncItem(ctx, item)
	return result, nil
}

// ToggleStatus lets the operator pick a new status for the task from the
// binding's status options in declared order.
func (s *Service) ToggleStatus(ctx context.Context, item tree.Item) (*MutationResult, error) {
	options, err := s.statusOptions(ctx, item.Binding)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = backend.ColorGlyph(opt.Color) + " " + opt.Name
		if opt.Name == item.Task.Status {
			labels[i] += " (current)"
		}
	}
	idx, err := s.operator.Select(fmt.Sprintf("Change status for %q", item.Task.Title), labels)
	if err != nil {
		return nil, err
	}
	return s.SetStatus(ctx, item, options[idx].Name)
}

// SetStatus writes a new status for the task and resyncs. Choosing the
// current status is a no-op. The status must be one of the binding's options.
func (s *Service) SetStatus(ctx context.Context, item tree.Item, status string) (*MutationResult, error) {
	if status == item.Task.Status {
		return &MutationResult{TaskID: item.Task.ID}, nil
	}

	options, err := s.statusOptions(ctx, item.Binding)
	if err != nil {
		return nil, err
	}
	if !hasStatus(options, status) {
		return nil, backend.NewValidationError("SetStatus", "unknown status %q (valid: %s)",
			status, strings.Join(backend.StatusNames(options), ", "))
	}

	err = s.withRetry(ctx, "Update status", func() error {
		remote, err := s.remoteFor(ctx)
		if err != nil {
			return err
		}
		return remote.UpdateStatus(ctx, item.Task.ID, status)
	})
	if err != nil {
		return nil, err
	}

	s.operator.Info(fmt.Sprintf("Updated %q to %s", item.Task.Title, status))
	result := &MutationResult{TaskID: item.Task.ID, Changed: true}
	result.Sync, result.SyncErr = s.resyncItem(ctx, item)
	return result, nil
}

// FindTask looks up a displayed task by id, then by exact title, then by a
// unique case-insensitive title prefix.
func FindTask(items []tree.Item, ref string) (tree.Item, bool) {
	for _, it := range items {
		if it.Task.ID == ref || normalizeID(it.Task.ID) == normalizeID(ref) {
			return it, true
		}
	}
	for _, it := range items {
		if it.Task.Title == ref {
			return it, true
		}
	}
	var match *tree.Item
	lower := strings.ToLower(ref)
	for i := range items {
		if strings.HasPrefix(strings.ToLower(items[i].Task.Title), lower) {
			if match != nil {
				return tree.Item{}, false
			}
			match = &items[i]
		}
	}
	if match == nil {
		return tree.Item{}, false
	}
	return *match, true
}

// statusOptions returns the binding's cached options. When none are cached
// they are fetched and persisted. Items without a stored binding fall back
// to the default options.
func (s *Service) statusOptions(ctx context.Context, binding backend.TrackedProject) ([]backend.StatusOption, error) {
	if binding.HasStatusCache() {
		return binding.StatusOptions, nil
	}

	stored, err := s.bindings.FindProject(ctx, binding.Path)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return backend.DefaultStatusOptions(), nil
	}
	if stored.HasStatusCache() {
		return stored.StatusOptions, nil
	}

	remote, err := s.remoteFor(ctx)
	if err != nil {
		return nil, err
	}
	options, err := remote.GetStatusOptions(ctx, stored.DatabaseID)
	if err != nil {
		return nil, err
	}
	stored.StatusOptions = options
	if err := s.bindings.AddOrUpdateProject(ctx, *stored); err != nil {
		return nil, err
	}
	return options, nil
}

func (s *Service) remoteFor(ctx context.Context) (backend.RemoteStore, error) {
	apiKey, err := s.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.newRemote(apiKey)
}

func (s *Service) resyncItem(ctx context.Context, item tree.Item) (*SyncResult, error) {
	if item.Binding.Path == "" {
		return nil, nil
	}
	return s.SyncWorkspace(ctx, filepath.Clean(item.Binding.Path))
}

func hasStatus(options []backend.StatusOption, status string) bool {
	for _, opt := range options {
		if opt.Name == status {
			return true
		}
	}
	return false
}
