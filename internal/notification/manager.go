package notification

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"todosync/internal/utils"
)

// Manager fans a notification out to every configured channel.
type Manager struct {
	channels []Channel
}

// NewManager creates the channels enabled in cfg. A manager without
// channels accepts and drops everything.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{}
	if cfg.Desktop.Enabled {
		m.channels = append(m.channels, NewDesktopChannel(cfg.Desktop, opts...))
	}
	if cfg.Log.Enabled && cfg.Log.Path != "" {
		m.channels = append(m.channels, NewLogChannel(cfg.Log))
	}
	return m
}

// Send delivers n to all channels. Every channel is tried; errors are joined.
func (m *Manager) Send(n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelCount returns the number of active channels.
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}

// Close closes every channel.
func (m *Manager) Close() error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutcomeNotifier turns a stream of sync results for one workspace into
// notifications on state changes: the first failure after a success, and
// the first success after a failure. Repeated failures stay quiet.
type OutcomeNotifier struct {
	sender    interface{ Send(Notification) error }
	workspace string

	mu      sync.Mutex
	failing bool
	lastErr string
}

// NewOutcomeNotifier creates a notifier for workspace.
func NewOutcomeNotifier(sender interface{ Send(Notification) error }, workspace string) *OutcomeNotifier {
	return &OutcomeNotifier{sender: sender, workspace: workspace}
}

// Observe records the result of one sync.
func (o *OutcomeNotifier) Observe(err error) {
	o.mu.Lock()
	var n *Notification
	switch {
	case err != nil && !o.failing:
		o.failing = true
		o.lastErr = err.Error()
		n = &Notification{
			Type:    TypeSyncFailed,
			Title:   "todosync: sync failed",
			Message: err.Error(),
		}
	case err != nil:
		o.lastErr = err.Error()
	case o.failing:
		o.failing = false
		n = &Notification{
			Type:    TypeSyncRecovered,
			Title:   "todosync: sync recovered",
			Message: fmt.Sprintf("Sync works again after: %s", o.lastErr),
		}
		o.lastErr = ""
	}
	o.mu.Unlock()

	if n == nil {
		return
	}
	n.Workspace = o.workspace
	if sendErr := o.sender.Send(*n); sendErr != nil {
		utils.Debugf("[Notification] %v", sendErr)
	}
}

// Failing reports whether the last observed sync failed.
func (o *OutcomeNotifier) Failing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failing
}
