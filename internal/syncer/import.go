package syncer

import (
	"context"
	"fmt"

	"todosync/backend"
	"todosync/internal/markdown"
	"todosync/internal/utils"
)

// ImportFailure records one draft that could not be created.
type ImportFailure struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// ImportResult is the tally of a bulk import.
type ImportResult struct {
	Total        int             `json:"total"`
	SuccessCount int             `json:"success_count"`
	FailCount    int             `json:"fail_count"`
	Failures     []ImportFailure `json:"failures,omitempty"`
	Sync         *SyncResult     `json:"-"`
	SyncErr      error           `json:"-"`
}

// ImportTasks parses a markdown checklist file and creates one task per
// draft in the database bound to path.
func (s *Service) ImportTasks(ctx context.Context, path, file string) (*ImportResult, error) {
	drafts, err := markdown.ParseFile(file)
	if err != nil {
		return nil, err
	}
	return s.ImportDrafts(ctx, path, drafts)
}

// ImportDrafts creates drafts one at a time after the operator confirms the
// count. The database shape and the project id are resolved once for the
// whole batch. A failed draft is counted and the batch continues; once
// creation starts, caller cancellation no longer stops it. A sync always
// follows.
func (s *Service) ImportDrafts(ctx context.Context, path string, drafts []markdown.TaskDraft) (*ImportResult, error) {
	if len(drafts) == 0 {
		s.operator.Warn("No tasks found in file. Use markdown checkboxes: - [ ] Task name")
		return nil, ErrNoTasksInFile
	}

	binding, apiKey, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	ok, err := s.operator.Confirm(fmt.Sprintf("Found %d task(s) to import. Continue?", len(drafts)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	remote, err := s.newRemote(apiKey)
	if err != nil {
		return nil, err
	}

	projectName := ""
	if remote.HasProjectProperty(ctx, binding.DatabaseID) {
		projectName = binding.ProjectName
	}

	shape, err := remote.GetDatabaseShape(ctx, binding.DatabaseID)
	if err != nil {
		return nil, err
	}

	projectID := ""
	if projectName != "" && shape.ProjectKind() == backend.ProjectFieldRelation {
		if p := backend.FindProjectByName(remote.GetProjectOptionsWithIDs(ctx, binding.DatabaseID), projectName); p != nil {
			projectID = p.ID
		} else {
			utils.Warnf("[Import] Project %q not found, tasks will be created without a project", projectName)
			projectName = ""
		}
	}

	utils.Debugf("[Import] %d draft(s), federated=%v, project=%q id=%q",
		len(drafts), backend.IsFederated(shape), projectName, projectID)

	batchCtx := context.WithoutCancel(ctx)
	result := &ImportResult{Total: len(drafts)}
	for i, d := range drafts {
		_, err := remote.CreateTask(batchCtx, binding.DatabaseID, backend.CreateTaskRequest{
			Title:       d.Title,
			Status:      d.Status,
			ProjectName: projectName,
			ProjectID:   projectID,
			Category:    d.Metadata.Category,
			Priority:    d.Metadata.Priority,
			Due:         d.Metadata.Due,
			Shape:       shape,
		})
		if err != nil {
			utils.Errorf("[Import] Failed to create task %q: %v", d.Title, err)
			result.FailCount++
			result.Failures = append(result.Failures, ImportFailure{Index: i, Title: d.Title, Error: err.Error()})
			continue
		}
		result.SuccessCount++
	}

	if result.FailCount == 0 {
		s.operator.Info(fmt.Sprintf("Successfully imported %d task(s).", result.SuccessCount))
	} else {
		s.operator.Warn(fmt.Sprintf("Imported %d task(s), %d failed. Check the log for details.", result.SuccessCount, result.FailCount))
	}

	result.Sync, result.SyncErr = s.SyncWorkspace(batchCtx, binding.Path)
	return result, nil
}
