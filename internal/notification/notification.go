// Package notification tells the user about sync outcomes that happen while
// nobody is looking at the terminal, such as failures during `todosync watch`.
package notification

import (
	"time"
)

// Type identifies what happened.
type Type string

const (
	TypeSyncFailed    Type = "sync_failed"
	TypeSyncRecovered Type = "sync_recovered"
	TypeTest          Type = "test"
)

// Notification is one message for the user.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Workspace string
	Timestamp time.Time
}

// Channel delivers notifications somewhere.
type Channel interface {
	Send(n Notification) error
	Close() error
}

// Config selects the channels.
type Config struct {
	Desktop DesktopConfig
	Log     LogConfig
}

// DesktopConfig controls native desktop notifications.
type DesktopConfig struct {
	Enabled    bool
	OnFailure  bool
	OnRecovery bool
}

// LogConfig controls the notification log file.
type LogConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
}

// CommandExecutor runs the platform notification command.
type CommandExecutor interface {
	Execute(name string, args ...string) error
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(name string, args ...string) error

// Execute implements CommandExecutor.
func (f ExecutorFunc) Execute(name string, args ...string) error {
	return f(name, args...)
}

type options struct {
	executor CommandExecutor
	platform string
}

// Option customizes the desktop channel.
type Option func(*options)

// WithCommandExecutor replaces the process runner.
func WithCommandExecutor(executor CommandExecutor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

// WithPlatform overrides runtime.GOOS.
func WithPlatform(platform string) Option {
	return func(o *options) {
		o.platform = platform
	}
}
