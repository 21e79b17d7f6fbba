package notification

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultMaxSizeMB = 1

// logChannel appends one line per notification to a file.
type logChannel struct {
	config LogConfig
	mu     sync.Mutex
	file   *os.File
}

// NewLogChannel creates a log channel writing to cfg.Path.
func NewLogChannel(cfg LogConfig) Channel {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	return &logChannel{config: cfg}
}

// Send writes "2026-01-16T10:30:00Z [SYNC_FAILED] /path: message".
func (c *logChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(); err != nil {
		return err
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.ReplaceAll(n.Message, "\n", " ")
	if n.Workspace != "" {
		message = n.Workspace + ": " + message
	}
	line := fmt.Sprintf("%s [%s] %s\n", ts.UTC().Format(time.RFC3339), strings.ToUpper(string(n.Type)), message)
	if _, err := c.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return c.file.Sync()
}

func (c *logChannel) open() error {
	if c.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create notification log directory: %w", err)
	}
	if err := c.rotate(); err != nil {
		return err
	}
	f, err := os.OpenFile(c.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification log: %w", err)
	}
	c.file = f
	return nil
}

// rotate keeps one previous generation as <path>.old.
func (c *logChannel) rotate() error {
	info, err := os.Stat(c.config.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < int64(c.config.MaxSizeMB)*1024*1024 {
		return nil
	}
	if err := os.Rename(c.config.Path, c.config.Path+".old"); err != nil {
		return fmt.Errorf("failed to rotate notification log: %w", err)
	}
	return nil
}

func (c *logChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// ReadLog returns the log lines, oldest first. A missing file is empty.
func ReadLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// ClearLog truncates the log. A missing file is not an error.
func ClearLog(path string) error {
	err := os.Truncate(path, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
