// Package shutdown coordinates the end of a command: a root context that is
// cancelled when shutdown starts, optional signal handling, and cleanup hooks
// that run once in reverse registration order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"todosync/internal/utils"
)

// CleanupFunc releases a resource. The context expires with the cleanup timeout.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles shutdown coordination.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	once        sync.Once
	cleanupOnce sync.Once
	cleanupErr  error
}

// NewManager creates a manager whose context derives from parent.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// RegisterCleanup adds a cleanup hook. Hooks run last registered first.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// HandleSignals starts shutdown on the first SIGINT or SIGTERM. Call the
// returned function to stop listening.
func (m *Manager) HandleSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			utils.Debugf("[Shutdown] received %s", sig)
			m.Shutdown()
		case <-done:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}

// Shutdown cancels the context. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()
		m.cancel()
	})
}

// IsShutdown reports whether shutdown has started.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context is cancelled when shutdown starts.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Close starts shutdown and runs the cleanup hooks within timeout. A failing
// hook does not stop the others; their errors are joined. Later calls return
// the first result.
func (m *Manager) Close(timeout time.Duration) error {
	m.Shutdown()
	m.cleanupOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		m.cleanupErr = m.runCleanups(ctx)
	})
	return m.cleanupErr
}

func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, ctx.Err()))
			continue
		}
		if err := cleanups[i].fn(ctx); err != nil {
			utils.Debugf("[Shutdown] cleanup %s failed: %v", cleanups[i].name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, err))
		}
	}
	return errors.Join(errs...)
}
