package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gem-assistant/internal/config"
)

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

// Pushover truncates messages beyond this length server-side; trim
// client-side so the rationale tail is not cut mid-word.
const pushoverMaxMessageLen = 1024

// PushoverNotifier sends notifications via the Pushover API.
type PushoverNotifier struct {
	apiToken string
	userKey  string
	enabled  bool
	url      string
	client   *http.Client
}

// NewPushoverNotifier creates a new PushoverNotifier.
func NewPushoverNotifier(cfg config.PushoverConfig) *PushoverNotifier {
	return &PushoverNotifier{
		apiToken: cfg.APIToken,
		userKey:  cfg.UserKey,
		enabled:  cfg.Enabled && cfg.APIToken != "" && cfg.UserKey != "",
		url:      pushoverMessagesURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (p *PushoverNotifier) Name() string {
	return "pushover"
}

// IsEnabled returns whether the notifier is enabled.
func (p *PushoverNotifier) IsEnabled() bool {
	return p.enabled
}

// Send sends a notification via Pushover.
func (p *PushoverNotifier) Send(ctx context.Context, n Notification) error {
	if !p.enabled {
		return nil
	}

	message := n.Message
	if len(message) > pushoverMaxMessageLen {
		message = message[:pushoverMaxMessageLen-3] + "..."
	}

	form := url.Values{}
	form.Set("token", p.apiToken)
	form.Set("user", p.userKey)
	form.Set("title", n.Title)
	form.Set("message", message)
	if n.Type == NotificationError {
		form.Set("priority", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending pushover message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API returned status %d", resp.StatusCode)
	}
	return nil
}
