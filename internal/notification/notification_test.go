package notification_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"todosync/internal/notification"
)

type recordedCall struct {
	name string
	args []string
}

func recorder(calls *[]recordedCall) notification.CommandExecutor {
	return notification.ExecutorFunc(func(name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return nil
	})
}

// =============================================================================
// Desktop channel
// =============================================================================

func TestDesktopLinux(t *testing.T) {
	var calls []recordedCall
	ch := notification.NewDesktopChannel(
		notification.DesktopConfig{Enabled: true, OnFailure: true},
		notification.WithCommandExecutor(recorder(&calls)),
		notification.WithPlatform("linux"),
	)

	err := ch.Send(notification.Notification{
		Type:    notification.TypeSyncFailed,
		Title:   "todosync: sync failed",
		Message: "rate limited",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(calls) != 1 || calls[0].name != "notify-send" {
		t.Fatalf("calls = %+v", calls)
	}
	args := strings.Join(calls[0].args, "|")
	if !strings.Contains(args, "todosync: sync failed|rate limited") {
		t.Errorf("args = %q", args)
	}
}

func TestDesktopDarwinEscapesQuotes(t *testing.T) {
	var calls []recordedCall
	ch := notification.NewDesktopChannel(
		notification.DesktopConfig{Enabled: true, OnFailure: true},
		notification.WithCommandExecutor(recorder(&calls)),
		notification.WithPlatform("darwin"),
	)

	_ = ch.Send(notification.Notification{
		Type:    notification.TypeSyncFailed,
		Title:   "todosync",
		Message: `database "Tasks" not shared`,
	})
	if len(calls) != 1 || calls[0].name != "osascript" {
		t.Fatalf("calls = %+v", calls)
	}
	script := calls[0].args[1]
	if !strings.Contains(script, `database \"Tasks\" not shared`) {
		t.Errorf("script = %q", script)
	}
}

func TestDesktopWindowsEscapesSubexpressions(t *testing.T) {
	var calls []recordedCall
	ch := notification.NewDesktopChannel(
		notification.DesktopConfig{Enabled: true},
		notification.WithCommandExecutor(recorder(&calls)),
		notification.WithPlatform("windows"),
	)

	_ = ch.Send(notification.Notification{Type: notification.TypeTest, Title: "t", Message: "$(whoami)"})
	if len(calls) != 1 || calls[0].name != "powershell" {
		t.Fatalf("calls = %+v", calls)
	}
	script := calls[0].args[len(calls[0].args)-1]
	if !strings.Contains(script, "`$(whoami)") {
		t.Errorf("script = %q", script)
	}
}

func TestDesktopTypeFiltering(t *testing.T) {
	tests := []struct {
		name   string
		config notification.DesktopConfig
		typ    notification.Type
		want   int
	}{
		{"failure enabled", notification.DesktopConfig{OnFailure: true}, notification.TypeSyncFailed, 1},
		{"failure disabled", notification.DesktopConfig{OnRecovery: true}, notification.TypeSyncFailed, 0},
		{"recovery enabled", notification.DesktopConfig{OnRecovery: true}, notification.TypeSyncRecovered, 1},
		{"recovery disabled", notification.DesktopConfig{OnFailure: true}, notification.TypeSyncRecovered, 0},
		{"test always sent", notification.DesktopConfig{}, notification.TypeTest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []recordedCall
			ch := notification.NewDesktopChannel(tt.config,
				notification.WithCommandExecutor(recorder(&calls)),
				notification.WithPlatform("linux"),
			)
			if err := ch.Send(notification.Notification{Type: tt.typ}); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if len(calls) != tt.want {
				t.Errorf("calls = %d, want %d", len(calls), tt.want)
			}
		})
	}
}

func TestDesktopUnsupportedPlatform(t *testing.T) {
	ch := notification.NewDesktopChannel(notification.DesktopConfig{},
		notification.WithCommandExecutor(notification.ExecutorFunc(func(string, ...string) error { return nil })),
		notification.WithPlatform("plan9"),
	)
	if err := ch.Send(notification.Notification{Type: notification.TypeTest}); err == nil {
		t.Error("expected an error for an unsupported platform")
	}
}

// =============================================================================
// Log channel
// =============================================================================

func TestLogChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notifications.log")
	ch := notification.NewLogChannel(notification.LogConfig{Enabled: true, Path: path})

	err := ch.Send(notification.Notification{
		Type:      notification.TypeSyncFailed,
		Message:   "network\nunreachable",
		Workspace: "/home/me/app",
		Timestamp: time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_ = ch.Close()

	lines, err := notification.ReadLog(path)
	if err != nil {
		t.Fatalf("ReadLog() error = %v", err)
	}
	want := "2026-01-16T10:30:00Z [SYNC_FAILED] /home/me/app: network unreachable"
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("lines = %q, want %q", lines, want)
	}

	if err := notification.ClearLog(path); err != nil {
		t.Fatalf("ClearLog() error = %v", err)
	}
	lines, _ = notification.ReadLog(path)
	if len(lines) != 0 {
		t.Errorf("lines after clear = %q", lines)
	}
}

func TestLogChannelRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	if err := os.WriteFile(path, make([]byte, 1024*1024), 0644); err != nil {
		t.Fatal(err)
	}

	ch := notification.NewLogChannel(notification.LogConfig{Enabled: true, Path: path, MaxSizeMB: 1})
	if err := ch.Send(notification.Notification{Type: notification.TypeTest, Message: "hello"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_ = ch.Close()

	if _, err := os.Stat(path + ".old"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
	lines, _ := notification.ReadLog(path)
	if len(lines) != 1 {
		t.Errorf("lines = %d, want 1", len(lines))
	}
}

func TestReadLogMissingFile(t *testing.T) {
	lines, err := notification.ReadLog(filepath.Join(t.TempDir(), "missing.log"))
	if err != nil || lines != nil {
		t.Errorf("ReadLog() = %v, %v", lines, err)
	}
	if err := notification.ClearLog(filepath.Join(t.TempDir(), "missing.log")); err != nil {
		t.Errorf("ClearLog() error = %v", err)
	}
}

// =============================================================================
// Manager
// =============================================================================

func TestManagerChannels(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  notification.Config
		want int
	}{
		{"none", notification.Config{}, 0},
		{"desktop", notification.Config{Desktop: notification.DesktopConfig{Enabled: true}}, 1},
		{"log without path", notification.Config{Log: notification.LogConfig{Enabled: true}}, 0},
		{"both", notification.Config{
			Desktop: notification.DesktopConfig{Enabled: true},
			Log:     notification.LogConfig{Enabled: true, Path: filepath.Join(dir, "n.log")},
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := notification.NewManager(tt.cfg, notification.WithPlatform("linux"),
				notification.WithCommandExecutor(notification.ExecutorFunc(func(string, ...string) error { return nil })))
			defer func() { _ = mgr.Close() }()
			if got := mgr.ChannelCount(); got != tt.want {
				t.Errorf("ChannelCount() = %d, want %d", got, tt.want)
			}
			if err := mgr.Send(notification.Notification{Type: notification.TypeTest}); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		})
	}
}

func TestManagerKeepsSendingAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.log")
	boom := errors.New("notify-send missing")
	mgr := notification.NewManager(notification.Config{
		Desktop: notification.DesktopConfig{Enabled: true},
		Log:     notification.LogConfig{Enabled: true, Path: path},
	},
		notification.WithPlatform("linux"),
		notification.WithCommandExecutor(notification.ExecutorFunc(func(string, ...string) error { return boom })),
	)

	err := mgr.Send(notification.Notification{Type: notification.TypeTest, Message: "hi"})
	if !errors.Is(err, boom) {
		t.Errorf("Send() error = %v", err)
	}
	_ = mgr.Close()

	lines, _ := notification.ReadLog(path)
	if len(lines) != 1 {
		t.Errorf("log channel should still receive the notification, got %d lines", len(lines))
	}
}

// =============================================================================
// OutcomeNotifier
// =============================================================================

type captureSender struct {
	sent []notification.Notification
}

func (c *captureSender) Send(n notification.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestOutcomeNotifierTransitions(t *testing.T) {
	sender := &captureSender{}
	o := notification.NewOutcomeNotifier(sender, "/ws")

	o.Observe(nil)
	o.Observe(errors.New("offline"))
	o.Observe(errors.New("still offline"))
	if !o.Failing() {
		t.Error("Failing() = false after an error")
	}
	o.Observe(nil)
	o.Observe(nil)

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2: %+v", len(sender.sent), sender.sent)
	}
	if sender.sent[0].Type != notification.TypeSyncFailed || sender.sent[0].Message != "offline" {
		t.Errorf("first = %+v", sender.sent[0])
	}
	if sender.sent[1].Type != notification.TypeSyncRecovered ||
		!strings.Contains(sender.sent[1].Message, "still offline") {
		t.Errorf("second = %+v", sender.sent[1])
	}
	if sender.sent[0].Workspace != "/ws" {
		t.Errorf("workspace = %q", sender.sent[0].Workspace)
	}
	if o.Failing() {
		t.Error("Failing() = true after recovery")
	}
}
