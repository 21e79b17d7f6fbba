package tui

import (
	"context"

	"todosync/internal/syncer"
	"todosync/internal/tree"
	"todosync/internal/utils"
)

// Actions are the operations the TUI can trigger. Implementations update
// the shared tree.Model the TUI renders from.
type Actions interface {
	Sync(ctx context.Context) (*syncer.SyncResult, error)
	AddTask(ctx context.Context, title string) error
	DeleteTask(ctx context.Context, item tree.Item) error
	SetStatus(ctx context.Context, item tree.Item, status string) error
}

// ServiceActions runs TUI actions through the sync orchestrator for one
// workspace. The service must be built with an Operator from NewOperator,
// since the TUI itself asks for confirmations and status choices.
type ServiceActions struct {
	Service *syncer.Service
	Path    string
}

func (a *ServiceActions) Sync(ctx context.Context) (*syncer.SyncResult, error) {
	return a.Service.SyncWorkspace(ctx, a.Path)
}

func (a *ServiceActions) AddTask(ctx context.Context, title string) error {
	_, err := a.Service.AddTask(ctx, a.Path, syncer.AddTaskRequest{Title: title})
	return err
}

func (a *ServiceActions) DeleteTask(ctx context.Context, item tree.Item) error {
	_, err := a.Service.DeleteTask(ctx, item)
	return err
}

func (a *ServiceActions) SetStatus(ctx context.Context, item tree.Item, status string) error {
	_, err := a.Service.SetStatus(ctx, item, status)
	return err
}

// Operator answers orchestrator questions on behalf of the TUI: the user has
// already confirmed in the interface, and failures are shown in the status
// bar where `r` retries.
type Operator struct{}

// NewOperator returns the TUI's orchestrator operator.
func NewOperator() *Operator { return &Operator{} }

var _ syncer.Operator = (*Operator)(nil)

func (o *Operator) Select(title string, options []string) (int, error) {
	if len(options) == 1 {
		return 0, nil
	}
	return 0, syncer.ErrCancelled
}

func (o *Operator) Input(prompt, defaultValue string) (string, error) {
	return defaultValue, nil
}

func (o *Operator) Confirm(message string) (bool, error) { return true, nil }

func (o *Operator) ShouldRetry(op string, err error) bool { return false }

func (o *Operator) Info(message string) { utils.Debugf("[TUI] %s", message) }

func (o *Operator) Warn(message string) { utils.Debugf("[TUI] warning: %s", message) }
