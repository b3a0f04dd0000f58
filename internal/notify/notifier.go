// Package notify delivers operator alerts to Telegram and Discord. Alerts are
// filtered by event type and sent from a background loop so a slow webhook
// never holds up the trading goroutine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/basketbot/internal/config"
)

const queueSize = 256

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type alert struct {
	event   string
	title   string
	message string
}

// Notifier fans alerts out to every sender. Only events in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan alert
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan alert, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// FromConfig builds the senders that have credentials configured.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	var senders []Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return NewNotifier(senders, cfg.Events, logger)
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify queues an alert. Filtered events and a full queue are dropped
// without error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	select {
	case n.queue <- alert{event: event, title: title, message: message}:
	default:
		n.logger.WarnContext(ctx, "alert queue full, dropping", slog.String("event", event))
	}
	return nil
}

// Run delivers queued alerts until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := n.Dispatch(sendCtx, a.title, a.message); err != nil {
				n.logger.WarnContext(ctx, "alert delivery failed",
					slog.String("event", a.event),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}

// Dispatch sends to every sender now. A failing sender does not stop the
// others; failures are combined in the returned error.
func (n *Notifier) Dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()), slog.String("title", title))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
