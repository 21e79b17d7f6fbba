// Package analytics keeps a local SQLite log of command runs: which command
// ran in which workspace, whether it succeeded, how long it took and what
// kind of error it hit.
package analytics

import "os"

// Event is a single recorded command run.
type Event struct {
	ID         int64
	Timestamp  int64
	Command    string
	Subcommand string
	Workspace  string
	Success    bool
	DurationMs int64
	ErrorType  string
	Flags      string // JSON array of flag names
}

// IsEnabledFromEnv returns the effective enabled state.
// TODOSYNC_ANALYTICS_ENABLED overrides the config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv("TODOSYNC_ANALYTICS_ENABLED")
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
