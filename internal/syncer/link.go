package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"todosync/backend"
	"todosync/internal/license"
	"todosync/internal/utils"
)

const createProjectChoice = "Create new project"

// LinkOptions preselects link choices. Empty fields are asked interactively.
type LinkOptions struct {
	DatabaseID  string
	ProjectName string
}

// LinkResult is the outcome of linking a workspace.
type LinkResult struct {
	Binding       backend.TrackedProject
	DatabaseTitle string
	Sync          *SyncResult
	// SyncErr is the failure of the sync that follows a successful link.
	SyncErr error
}

// CheckQuota enforces the free tier's limit of one distinct (database,
// project) pair across all local bindings. The binding already stored at the
// candidate's path is replaced by the link, so it does not count.
func CheckQuota(info license.Info, existing []backend.TrackedProject, candidate backend.TrackedProject) error {
	if !info.IsFree() {
		return nil
	}
	keys := make(map[string]struct{})
	for _, p := range existing {
		if filepath.Clean(p.Path) == filepath.Clean(candidate.Path) {
			continue
		}
		keys[p.QuotaKey()] = struct{}{}
	}
	if _, ok := keys[candidate.QuotaKey()]; ok {
		return nil
	}
	if len(keys) >= 1 {
		return backend.NewQuotaError(FreeQuotaMessage)
	}
	return nil
}

// Link binds the workspace at path to a database and a project, caches the
// database's status options, and runs one sync.
func (s *Service) Link(ctx context.Context, path string, opts LinkOptions) (*LinkResult, error) {
	path = filepath.Clean(path)

	var result *LinkResult
	err := s.withRetry(ctx, "Link", func() error {
		var err error
		result, err = s.link(ctx, path, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.Sync, result.SyncErr = s.SyncWorkspace(ctx, path)
	return result, nil
}

func (s *Service) link(ctx context.Context, path string, opts LinkOptions) (*LinkResult, error) {
	apiKey, err := s.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.newRemote(apiKey)
	if err != nil {
		return nil, err
	}

	db, err := s.chooseDatabase(ctx, remote, opts.DatabaseID)
	if err != nil {
		return nil, err
	}

	projectName := filepath.Base(path)
	if remote.HasProjectProperty(ctx, db.ID) {
		projectName, err = s.chooseProject(ctx, remote, db.ID, opts.ProjectName, projectName)
		if err != nil {
			return nil, err
		}
		s.operator.Info(fmt.Sprintf("Using centralized database with project filter %q", projectName))
	}

	binding := backend.TrackedProject{Path: path, DatabaseID: db.ID, ProjectName: projectName}

	existing, err := s.bindings.GetTrackedProjects(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckQuota(s.checkLicense(ctx), existing, binding); err != nil {
		return nil, err
	}

	binding.StatusOptions, err = remote.GetStatusOptions(ctx, db.ID)
	if err != nil {
		return nil, err
	}
	if err := s.bindings.AddOrUpdateProject(ctx, binding); err != nil {
		return nil, err
	}

	s.logActivity(ctx, "link_database", map[string]string{"workspace": filepath.Base(path)})
	utils.Debugf("[Link] %s -> %s (project %q)", path, db.ID, projectName)

	return &LinkResult{Binding: binding, DatabaseTitle: db.Title}, nil
}

func (s *Service) chooseDatabase(ctx context.Context, remote backend.RemoteStore, preset string) (backend.Database, error) {
	dbs, err := remote.ListDatabases(ctx)
	if err != nil {
		return backend.Database{}, err
	}

	if preset != "" {
		for _, db := range dbs {
			if db.ID == preset || normalizeID(db.ID) == normalizeID(preset) {
				return db, nil
			}
		}
		return backend.Database{}, backend.NewValidationError("Link", "database %s is not accessible with this API key", preset)
	}

	if len(dbs) == 0 {
		return backend.Database{}, ErrNoDatabases
	}

	labels := make([]string, len(dbs))
	for i, db := range dbs {
		labels[i] = fmt.Sprintf("%s (%s)", db.Title, db.ID)
	}
	idx, err := s.operator.Select("Select Notion database to link to this workspace", labels)
	if err != nil {
		return backend.Database{}, err
	}
	return dbs[idx], nil
}

func (s *Service) chooseProject(ctx context.Context, remote backend.RemoteStore, databaseID, preset, fallback string) (string, error) {
	if name := strings.TrimSpace(preset); name != "" {
		return name, nil
	}

	choices := append(remote.GetProjectOptions(ctx, databaseID), createProjectChoice)
	idx, err := s.operator.Select("Select project for this workspace", choices)
	if err != nil {
		return "", err
	}
	if idx < len(choices)-1 {
		return choices[idx], nil
	}

	name, err := s.operator.Input("Enter new project name", fallback)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty project name: %w", ErrCancelled)
	}
	return name, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

// Unlink removes the binding at path after confirmation and clears the
// display immediately.
func (s *Service) Unlink(ctx context.Context, path string) (*backend.TrackedProject, error) {
	binding, err := s.bindings.FindProject(ctx, filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, ErrNotLinked
	}

	ok, err := s.operator.Confirm(fmt.Sprintf("Unlink %s from database %s?", binding.Path, binding.DatabaseID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	removed, err := s.bindings.RemoveProjectByPath(ctx, binding.Path)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, ErrNotLinked
	}
	s.display.Clear()
	return binding, nil
}
