// Package notify delivers finished signals and run errors to the
// configured notification channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gem-assistant/internal/config"
	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendSignal(ctx context.Context, signal models.Signal) error
	SendError(ctx context.Context, err error, errContext string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationSignal NotificationType = "signal"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelSignalsOnly NotificationLevel = "signals_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Pushover.Enabled {
		mn.channels = append(mn.channels, NewPushoverNotifier(cfg.Pushover))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Terminal.Enabled {
		mn.channels = append(mn.channels, NewTerminalNotifier())
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification passes the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelSignalsOnly:
		return notifType == NotificationSignal
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. Delivery is
// best-effort per channel; the combined error lists every channel
// that failed.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.NewNotificationError("multi", errors.New(strings.Join(errs, "; ")))
	}
	return nil
}

// SendSignal sends a finished signal notification.
func (mn *MultiNotifier) SendSignal(ctx context.Context, signal models.Signal) error {
	var emoji string
	switch signal.Kind {
	case models.SignalBuy:
		emoji = "🟢"
	case models.SignalSell:
		emoji = "🔴"
	default:
		emoji = "🟡"
	}

	title := fmt.Sprintf("%s Momentum Signal: %s", emoji, signal.Action())
	message := fmt.Sprintf("Evaluation date: %s\nInstrument: %s\nAction: %s",
		signal.EvaluationDate.Format("2006-01-02"), signal.InstrumentID, signal.Kind)
	if signal.Rationale != "" {
		message += "\n\n" + signal.Rationale
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationSignal,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"evaluation_date": signal.EvaluationDate.Format("2006-01-02"),
			"instrument_id":   signal.InstrumentID,
			"kind":            string(signal.Kind),
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	title := "❌ Run Failed"
	message := fmt.Sprintf("Context: %s\nError: %v\nTime: %s",
		errContext, err, time.Now().Format("15:04:05"))

	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendSignal does nothing.
func (n *NoOpNotifier) SendSignal(ctx context.Context, signal models.Signal) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return nil
}
