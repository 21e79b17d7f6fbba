// Package syncer drives reconciliation between a local workspace binding and
// its remote task database, and mediates every task mutation.
//
// All collaborators are passed in explicitly. The core cycle, Sync, takes the
// binding and the credential as arguments; the workspace-level operations
// resolve both from the binding store and credential source on every attempt.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"todosync/backend"
	"todosync/internal/license"
	"todosync/internal/tree"
	"todosync/internal/utils"
)

// Sentinel errors returned by workspace operations.
var (
	ErrNotLinked     = errors.New("workspace is not linked to a Notion database")
	ErrNoCredential  = errors.New("Notion API key is not set")
	ErrNoDatabases   = errors.New("no Notion databases accessible with this API key")
	ErrNoTasksInFile = errors.New("no tasks found in file")
	ErrCancelled     = errors.New("operation cancelled")
)

// FreeQuotaMessage is shown when the free tier's project limit is reached.
const FreeQuotaMessage = "ToDoSync Free: You can only sync 1 project. Upgrade to Pro for unlimited projects."

// BindingStore persists workspace bindings.
type BindingStore interface {
	GetTrackedProjects(ctx context.Context) ([]backend.TrackedProject, error)
	FindProject(ctx context.Context, path string) (*backend.TrackedProject, error)
	AddOrUpdateProject(ctx context.Context, p backend.TrackedProject) error
	RemoveProjectByPath(ctx context.Context, path string) (bool, error)
}

// CredentialSource supplies the remote API key. An empty key with a nil
// error means no key is configured.
type CredentialSource interface {
	GetAPIKey(ctx context.Context) (string, error)
}

// LicenseService reports the license tier and records activity.
type LicenseService interface {
	CheckLicense(ctx context.Context) license.Info
	LogActivity(ctx context.Context, action string, metadata map[string]string)
}

// Operator is the human in the loop. Select returns the chosen index.
// Cancelling a prompt returns an error wrapping ErrCancelled.
type Operator interface {
	Select(title string, options []string) (int, error)
	Input(prompt, defaultValue string) (string, error)
	Confirm(message string) (bool, error)
	// ShouldRetry asks whether to retry op after err (Retry/Dismiss).
	ShouldRetry(op string, err error) bool
	Info(message string)
	Warn(message string)
}

// Display receives the reconciled task list.
type Display interface {
	SetItems(items []tree.Item)
	Clear()
}

// RemoteFactory creates a remote store client for an API key.
type RemoteFactory func(apiKey string) (backend.RemoteStore, error)

// Options tunes the orchestrator.
type Options struct {
	PageSize   int // 0 uses the remote default
	MaxRetries int // Operator-confirmed retries per operation
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Bindings    BindingStore
	Credentials CredentialSource
	License     LicenseService // Optional; nil means unrestricted free tier
	Operator    Operator
	Display     Display
	NewRemote   RemoteFactory
	Options     Options
}

// Service is the sync orchestrator.
type Service struct {
	bindings    BindingStore
	credentials CredentialSource
	license     LicenseService
	operator    Operator
	display     Display
	newRemote   RemoteFactory
	opts        Options
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{
		bindings:    deps.Bindings,
		credentials: deps.Credentials,
		license:     deps.License,
		operator:    deps.Operator,
		display:     deps.Display,
		newRemote:   deps.NewRemote,
		opts:        deps.Options,
	}
}

// SyncState reports how far a workspace sync got.
type SyncState int

const (
	SyncDone SyncState = iota
	SyncNotLinked
	SyncNoCredential
)

// SyncResult is the outcome of one reconciliation cycle.
type SyncResult struct {
	State         SyncState
	Binding       backend.TrackedProject
	ProjectFilter string
	Items         []tree.Item
	// StatusFetched is set when the cycle populated the status cache.
	StatusFetched bool
}

// Sync runs one reconciliation cycle for binding. Status options are fetched
// and persisted only when the binding has none cached. The fetched tasks
// replace the displayed list wholesale.
func (s *Service) Sync(ctx context.Context, binding backend.TrackedProject, apiKey string) (*SyncResult, error) {
	remote, err := s.newRemote(apiKey)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{State: SyncDone}

	if !binding.HasStatusCache() {
		options, err := remote.GetStatusOptions(ctx, binding.DatabaseID)
		if err != nil {
			return nil, err
		}
		binding.StatusOptions = options
		if err := s.bindings.AddOrUpdateProject(ctx, binding); err != nil {
			return nil, fmt.Errorf("failed to cache status options: %w", err)
		}
		result.StatusFetched = true
	}

	shape, err := remote.GetDatabaseShape(ctx, binding.DatabaseID)
	if err != nil {
		return nil, err
	}

	if binding.ProjectName != "" && remote.HasProjectProperty(ctx, binding.DatabaseID) {
		result.ProjectFilter = binding.ProjectName
	}

	tasks, err := remote.GetTasks(ctx, binding.DatabaseID, backend.TaskQuery{
		PageSize:      s.opts.PageSize,
		ProjectFilter: result.ProjectFilter,
		Shape:         shape,
	})
	if err != nil {
		return nil, err
	}

	items := make([]tree.Item, len(tasks))
	for i, t := range tasks {
		items[i] = tree.Item{Task: t, Binding: binding}
	}
	s.display.SetItems(items)

	utils.Debugf("[Sync] %s: %d task(s), project filter %q", binding.Path, len(items), result.ProjectFilter)

	result.Binding = binding
	result.Items = items
	return result, nil
}

// SyncWorkspace resolves the binding and credential for path and runs a
// cycle. An unbound path clears the display; a missing credential stops
// silently. Failures go through the operator's retry choice, and each retry
// starts again from resolving the binding.
func (s *Service) SyncWorkspace(ctx context.Context, path string) (*SyncResult, error) {
	var result *SyncResult
	err := s.withRetry(ctx, "Sync", func() error {
		binding, apiKey, err := s.resolve(ctx, path)
		if errors.Is(err, ErrNotLinked) {
			s.display.Clear()
			result = &SyncResult{State: SyncNotLinked}
			return nil
		}
		if errors.Is(err, ErrNoCredential) {
			result = &SyncResult{State: SyncNoCredential, Binding: *binding}
			return nil
		}
		if err != nil {
			return err
		}
		result, err = s.Sync(ctx, *binding, apiKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Projects lists every binding.
func (s *Service) Projects(ctx context.Context) ([]backend.TrackedProject, error) {
	return s.bindings.GetTrackedProjects(ctx)
}

// Databases lists the databases the credential can access.
func (s *Service) Databases(ctx context.Context) ([]backend.Database, error) {
	apiKey, err := s.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.newRemote(apiKey)
	if err != nil {
		return nil, err
	}
	return remote.ListDatabases(ctx)
}

// resolve loads the binding and credential for path. A missing credential
// is reported together with the binding.
func (s *Service) resolve(ctx context.Context, path string) (*backend.TrackedProject, string, error) {
	binding, err := s.bindings.FindProject(ctx, filepath.Clean(path))
	if err != nil {
		return nil, "", err
	}
	if binding == nil {
		return nil, "", ErrNotLinked
	}
	apiKey, err := s.apiKey(ctx)
	if err != nil {
		return binding, "", err
	}
	return binding, apiKey, nil
}

func (s *Service) apiKey(ctx context.Context) (string, error) {
	key, err := s.credentials.GetAPIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}

func (s *Service) checkLicense(ctx context.Context) license.Info {
	if s.license == nil {
		return license.FreeInfo()
	}
	return s.license.CheckLicense(ctx)
}

func (s *Service) logActivity(ctx context.Context, action string, metadata map[string]string) {
	if s.license != nil {
		s.license.LogActivity(ctx, action, metadata)
	}
}
