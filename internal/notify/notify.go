package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		// Only macOS supported for now
		return nil
	}

	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	// Escape quotes in title and message
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// FormatRunComplete formats an annotation run completion message.
func FormatRunComplete(runID string, pairsTotal, pairsFailed, escalated int) (title, message string) {
	if pairsFailed > 0 {
		title = "⚠️ DeckSage Annotation Run Incomplete"
		message = fmt.Sprintf("%s: %d/%d pairs failed, %d escalated", runID, pairsFailed, pairsTotal, escalated)
	} else {
		title = "✅ DeckSage Annotation Run Complete"
		message = fmt.Sprintf("%s: %d pairs annotated, %d escalated", runID, pairsTotal, escalated)
	}
	return title, message
}

// FormatQueueBacklog formats a pending-review backlog message.
func FormatQueueBacklog(pending, critical int) (title, message string) {
	if critical > 0 {
		title = "🚨 DeckSage Review Backlog"
		message = fmt.Sprintf("%d tasks pending, %d critical", pending, critical)
	} else {
		title = "📋 DeckSage Review Backlog"
		message = fmt.Sprintf("%d tasks pending human review", pending)
	}
	return title, message
}
