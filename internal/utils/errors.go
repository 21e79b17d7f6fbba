package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrNotLinked returns an error for a workspace without a binding.
func ErrNotLinked(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("workspace %s is not linked to a Notion database", path),
		Suggestion: "Link this workspace to a Notion database first with 'todosync link'",
	}
}

// ErrAPIKeyMissing returns an error when no Notion API key is configured.
func ErrAPIKeyMissing() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("Notion API key is not set"),
		Suggestion: "Set Notion API key first with 'todosync apikey set' or the TODOSYNC_NOTION_TOKEN environment variable",
	}
}

// ErrQuotaExceeded returns an error when the license does not allow another project.
func ErrQuotaExceeded(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Unlink an existing project with 'todosync projects --unlink <path>' or upgrade to Pro",
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the search term or use 'todosync sync' to see all tasks",
	}
}

// ErrNoTasksInFile returns an error for an import file without checklist items.
func ErrNoTasksInFile(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no tasks found in %s", path),
		Suggestion: "Use markdown checkboxes: - [ ] Task name",
	}
}

// ErrBackendOffline returns an error when Notion is unreachable with smart suggestions.
func ErrBackendOffline(reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("Notion is unreachable: %s", reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "timed out") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15) or today, tomorrow, +3d, +2w",
	}
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrAuthenticationFailed returns an error when the Notion API key is rejected.
func ErrAuthenticationFailed(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Verify your Notion API key with 'todosync apikey set' and that the integration is still active",
	}
}

// ErrNotShared returns an error when a database is not shared with the integration.
func ErrNotShared(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Open the database in Notion and add your integration under Connections",
	}
}
