package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to stdout.
type TerminalNotifier struct {
	enabled bool
}

// NewTerminalNotifier creates a new TerminalNotifier.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{enabled: true}
}

// Name returns the name of the notifier.
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TerminalNotifier) IsEnabled() bool {
	return t.enabled
}

// Send prints a notification to stdout, coloring the title by type.
func (t *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	var c *color.Color
	switch n.Type {
	case NotificationSignal:
		c = color.New(color.FgGreen, color.Bold)
	case NotificationError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}

	c.Printf("[%s] %s\n", n.Timestamp.Format("15:04:05"), n.Title)
	if n.Message != "" {
		fmt.Println(n.Message)
	}
	return nil
}
