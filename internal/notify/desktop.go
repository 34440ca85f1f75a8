package notify

import (
	"fmt"
	"os/exec"
	"runtime"
)

// DesktopNotifier raises a native desktop notification when a batch run
// finishes, via osascript on macOS and notify-send on Linux.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send raises the notification. Unsupported platforms are a silent no-op.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("osascript", "-e", appleScript(n)).Run()
	case "linux":
		return exec.Command("notify-send", notifySendArgs(n)...).Run()
	default:
		return nil
	}
}

// desktopBody appends the run reference so the toast says which batch it
// belongs to
func desktopBody(n Notification) string {
	if n.RunID == "" {
		return n.Message
	}
	return fmt.Sprintf("%s (run %s)", n.Message, n.RunID)
}

func appleScript(n Notification) string {
	return fmt.Sprintf("display notification %q with title %q", desktopBody(n), n.Title)
}

// notifySendArgs maps batch failures to critical urgency so they stay on
// screen until dismissed; cancellations are low-urgency noise
func notifySendArgs(n Notification) []string {
	urgency := "normal"
	switch n.Type {
	case NotifyError:
		urgency = "critical"
	case NotifyInfo:
		urgency = "low"
	}
	return []string{"--urgency", urgency, "--app-name", "research-orch", n.Title, desktopBody(n)}
}
