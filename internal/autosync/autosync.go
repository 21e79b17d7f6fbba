// Package autosync keeps a workspace's task list fresh in the background.
// A cycle runs on startup, on every refresh tick, after file changes in the
// workspace settle, and when the process receives SIGUSR1. Consecutive
// failures open a circuit breaker that pauses background cycles.
package autosync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"todosync/internal/utils"
	"todosync/internal/watcher"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup    Trigger = "startup"
	TriggerTimer      Trigger = "timer"
	TriggerFileChange Trigger = "file-change"
	TriggerFocus      Trigger = "focus"
)

// SyncFunc runs one sync cycle.
type SyncFunc func(ctx context.Context, trigger Trigger) error

// Config holds runner configuration.
type Config struct {
	Interval         time.Duration // Refresh interval; zero disables the timer
	WatchPaths       []string      // Workspace directory and the bindings database
	Debounce         time.Duration
	FailureThreshold int
	Cooldown         time.Duration

	// Log receives one line per cycle. Nil disables the file log.
	Log *utils.BackgroundLogger
}

// Stats describes the runner's history.
type Stats struct {
	SyncCount    int
	ErrorCount   int
	SkippedCount int
	LastSync     time.Time
	LastError    string
	Circuit      CircuitState
}

// Runner schedules sync cycles.
type Runner struct {
	cfg     Config
	sync    SyncFunc
	breaker *CircuitBreaker
	pokes   chan Trigger

	syncMu sync.Mutex // one cycle at a time
	mu     sync.Mutex
	stats  Stats
}

// New creates a runner for fn.
func New(cfg Config, fn SyncFunc) *Runner {
	return &Runner{
		cfg:     cfg,
		sync:    fn,
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown),
		pokes:   make(chan Trigger, 1),
	}
}

// Poke requests a cycle. Pokes arriving while one is pending are merged.
func (r *Runner) Poke(trigger Trigger) {
	select {
	case r.pokes <- trigger:
	default:
	}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.cfg.WatchPaths) > 0 {
		w, err := watcher.New(watcher.Config{
			Paths:            r.cfg.WatchPaths,
			Recursive:        true,
			DebounceDuration: r.cfg.Debounce,
			OnChange:         func() { r.Poke(TriggerFileChange) },
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	if len(focusSignals) > 0 {
		signal.Notify(sigChan, focusSignals...)
		defer signal.Stop(sigChan)
	}

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.logf("Watching (interval: %v, paths: %v)", r.cfg.Interval, r.cfg.WatchPaths)
	r.Cycle(ctx, TriggerStartup)

	for {
		select {
		case <-ctx.Done():
			r.logf("Stopped")
			return nil
		case <-tick:
			r.Cycle(ctx, TriggerTimer)
		case trigger := <-r.pokes:
			r.Cycle(ctx, trigger)
		case <-sigChan:
			r.Cycle(ctx, TriggerFocus)
		}
	}
}

// Cycle runs one sync unless the circuit is open.
func (r *Runner) Cycle(ctx context.Context, trigger Trigger) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	if !r.breaker.Allow() {
		r.mu.Lock()
		r.stats.SkippedCount++
		r.mu.Unlock()
		r.logf("Skipped %s sync: paused after %d consecutive failures", trigger, r.breaker.FailureCount())
		return
	}

	start := time.Now()
	err := r.sync(ctx, trigger)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}

	r.mu.Lock()
	r.stats.SyncCount++
	if err != nil {
		r.stats.ErrorCount++
		r.stats.LastError = err.Error()
	} else {
		r.stats.LastSync = time.Now()
		r.stats.LastError = ""
	}
	r.mu.Unlock()

	if err != nil {
		r.breaker.RecordFailure()
		r.logf("Sync (%s) failed: %v", trigger, err)
		return
	}
	r.breaker.RecordSuccess()
	r.logf("Sync (%s) completed in %v", trigger, time.Since(start).Round(time.Millisecond))
}

// Stats returns a snapshot of the runner's history.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Circuit = r.breaker.State()
	return s
}

func (r *Runner) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	utils.Debugf("[Watch] %s", msg)
	if r.cfg.Log != nil {
		r.cfg.Log.Printf("%s", msg)
	}
}
