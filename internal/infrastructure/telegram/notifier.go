package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"TariffIntel/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// messageLimit is the Bot API cap on one sendMessage text.
	messageLimit = 4096
)

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *resty.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customizes the notifier.
type Option func(*Notifier)

// WithAPIBase points the notifier at another Bot API host.
func WithAPIBase(base string) Option {
	return func(n *Notifier) {
		n.client.SetBaseURL(strings.TrimRight(base, "/"))
	}
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client: resty.New().
			SetBaseURL(defaultAPIBase).
			SetTimeout(5 * time.Second).
			SetRetryCount(1).
			SetRetryWaitTime(500 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Configured reports whether both token and chat are set.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// PublishDigest posts a Markdown message to Telegram, split into several
// messages when it exceeds the API limit.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if !n.Configured() {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	for _, part := range splitMessage(digest, messageLimit) {
		resp, err := n.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"chat_id":    n.chatID,
				"text":       part,
				"parse_mode": "Markdown",
			}).
			SetPathParam("token", n.botToken).
			Post("/bot{token}/sendMessage")
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("telegram error: %s", resp.Status())
		}
	}
	return nil
}

// splitMessage cuts text on line boundaries into chunks of at most limit
// runes. A single line longer than limit is cut hard.
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = current[:0]
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}
