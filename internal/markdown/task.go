// Package markdown parses checklist-formatted markdown documents into task
// drafts for bulk import.
package markdown

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"todosync/backend"
	"todosync/internal/utils"
)

// Metadata holds the optional values extracted from inline tags and headings.
type Metadata struct {
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	Due      string `json:"due,omitempty"` // YYYY-MM-DD
}

// TaskDraft is a parsed checklist item waiting to be created remotely.
type TaskDraft struct {
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Metadata Metadata `json:"metadata"`
}

var (
	lineBreakPattern = regexp.MustCompile(`\r?\n|\r`)
	taskPattern      = regexp.MustCompile(`^\s*[-*]\s*\[([ xX])\]\s*(.+)$`)
	// A level-2 heading, optionally led by a run of decorative symbols.
	headerPattern   = regexp.MustCompile(`^##\s+(?:[\p{So}\p{Sk}\x{FE0F}\x{200D}]+\s+)?(.+)$`)
	statusPattern   = tagPattern("status")
	priorityPattern = tagPattern("priority")
	categoryPattern = tagPattern("category")
	duePattern      = regexp.MustCompile(`@due:(\d{4}-\d{2}-\d{2})(?:\s|$)`)
)

// tagPattern matches "@key:value" where value runs until the next " @" or
// the end of the text.
func tagPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`@` + key + `:(.+?)(?:\s+@|$)`)
}

// extractTag returns the trimmed tag value and the text with the tag removed.
// The separator before a following tag is kept.
func extractTag(pattern *regexp.Regexp, text string) (string, string, bool) {
	loc := pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}
	value := strings.TrimSpace(text[loc[2]:loc[3]])
	return value, spliceOut(text[:loc[0]], text[loc[3]:]), true
}

// spliceOut joins the text on either side of a removed tag with one space.
// Blanks elsewhere in the title are left as written.
func spliceOut(before, after string) string {
	return strings.TrimSpace(strings.TrimRight(before, " \t") + " " + strings.TrimLeft(after, " \t"))
}

// Parse converts a checklist document into drafts in source order. LF, CRLF
// and bare CR line endings are all accepted.
func Parse(content string) []TaskDraft {
	var drafts []TaskDraft
	currentCategory := ""

	for _, line := range lineBreakPattern.Split(content, -1) {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			currentCategory = strings.TrimSpace(m[1])
			continue
		}

		m := taskPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		checked := strings.EqualFold(m[1], "x")
		draft := parseItem(strings.TrimSpace(m[2]), checked, currentCategory)
		utils.Debugf("[Parse] Task: %q, status: %q, category: %q", draft.Title, draft.Status, draft.Metadata.Category)
		drafts = append(drafts, draft)
	}

	utils.Debugf("[Parse] Total parsed: %d tasks", len(drafts))
	return drafts
}

func parseItem(text string, checked bool, currentCategory string) TaskDraft {
	var meta Metadata

	status, text, hasStatus := extractTag(statusPattern, text)
	meta.Priority, text, _ = extractTag(priorityPattern, text)

	if loc := duePattern.FindStringSubmatchIndex(text); loc != nil {
		due := text[loc[2]:loc[3]]
		if _, err := time.Parse("2006-01-02", due); err == nil {
			meta.Due = due
			text = spliceOut(text[:loc[0]], text[loc[3]:])
		} else {
			utils.Debugf("[Parse] Ignoring invalid due date %q", due)
		}
	}

	category, text, hasCategory := extractTag(categoryPattern, text)
	if hasCategory {
		meta.Category = category
	} else {
		meta.Category = currentCategory
	}

	switch {
	case hasStatus:
	case checked:
		status = backend.StatusDone
	default:
		status = backend.StatusNotStarted
	}

	return TaskDraft{
		Title:    text,
		Status:   status,
		Metadata: meta,
	}
}

// ParseFile reads and parses a checklist document.
func ParseFile(path string) ([]TaskDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}
