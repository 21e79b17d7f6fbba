package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// desktopChannel shows notifications with the platform's notification tool.
type desktopChannel struct {
	config   DesktopConfig
	executor CommandExecutor
	platform string
}

// NewDesktopChannel creates a desktop channel.
func NewDesktopChannel(cfg DesktopConfig, opts ...Option) Channel {
	o := options{platform: runtime.GOOS}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executor == nil {
		o.executor = ExecutorFunc(func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		})
	}
	return &desktopChannel{config: cfg, executor: o.executor, platform: o.platform}
}

func (c *desktopChannel) Send(n Notification) error {
	if !c.wants(n.Type) {
		return nil
	}
	switch c.platform {
	case "linux", "freebsd", "openbsd":
		return c.executor.Execute("notify-send", "--app-name=todosync", n.Title, n.Message)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message), escapeAppleScript(n.Title))
		return c.executor.Execute("osascript", "-e", script)
	case "windows":
		return c.executor.Execute("powershell", "-NoProfile", "-Command", windowsScript(n))
	default:
		return fmt.Errorf("desktop notifications are not supported on %s", c.platform)
	}
}

func (c *desktopChannel) wants(t Type) bool {
	switch t {
	case TypeSyncFailed:
		return c.config.OnFailure
	case TypeSyncRecovered:
		return c.config.OnRecovery
	default:
		return true
	}
}

func (c *desktopChannel) Close() error {
	return nil
}

// escapeAppleScript escapes backslashes and double quotes for an AppleScript string literal.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// escapePowerShell escapes a value for a double-quoted PowerShell string.
// Backtick is the escape character and $ would start a subexpression.
func escapePowerShell(s string) string {
	s = strings.ReplaceAll(s, "`", "``")
	s = strings.ReplaceAll(s, `"`, "`\"")
	return strings.ReplaceAll(s, "$", "`$")
}

func windowsScript(n Notification) string {
	return fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
$balloon = New-Object System.Windows.Forms.NotifyIcon
$balloon.Icon = [System.Drawing.SystemIcons]::Information
$balloon.BalloonTipTitle = "%s"
$balloon.BalloonTipText = "%s"
$balloon.Visible = $true
$balloon.ShowBalloonTip(5000)
`, escapePowerShell(n.Title), escapePowerShell(n.Message))
}
