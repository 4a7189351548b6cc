// Package notify alerts operators about resolutions that need a human:
// escalations, pipeline errors and, optionally, settlements. Alerts go to
// every registered sender (Telegram, Discord) and are filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Event types accepted in the notify.events config list.
const (
	EventEscalate      = "escalate"
	EventPipelineError = "pipeline_error"
	EventSettle        = "settle"
	EventReject        = "reject"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders, forwarding only
// event types in its allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyResult classifies result into an event type and notifies. DEFER
// results never notify: they are waiting on time, not on a person.
func (n *Notifier) NotifyResult(ctx context.Context, market domain.Market, result domain.ResolutionResult) error {
	event, ok := ResultEvent(result)
	if !ok {
		return nil
	}
	title, message := FormatResult(market, result)
	return n.Notify(ctx, event, title, message)
}

// ResultEvent maps a result to its event type.
func ResultEvent(result domain.ResolutionResult) (string, bool) {
	switch {
	case result.HasFlag(domain.FlagPipelineError):
		return EventPipelineError, true
	case result.SettlementAction == domain.ActionEscalate:
		return EventEscalate, true
	case result.SettlementAction == domain.ActionSettle:
		return EventSettle, true
	case result.SettlementAction == domain.ActionReject:
		return EventReject, true
	default:
		return "", false
	}
}

const maxReasoningRunes = 600

// FormatResult renders a result as a notification title and body.
func FormatResult(market domain.Market, result domain.ResolutionResult) (string, string) {
	title := fmt.Sprintf("%s %s: %s", result.SettlementAction, result.Outcome, result.MarketID)

	var b strings.Builder
	if market.Question != "" {
		fmt.Fprintf(&b, "%s\n", market.Question)
	}
	fmt.Fprintf(&b, "category %s, confidence %.2f\n", result.Category, result.Confidence)
	if len(result.Flags) > 0 {
		fmt.Fprintf(&b, "flags: %s\n", strings.Join(result.Flags, ", "))
	}
	if r := []rune(result.Reasoning); len(r) > maxReasoningRunes {
		b.WriteString(string(r[:maxReasoningRunes]) + "...")
	} else {
		b.WriteString(result.Reasoning)
	}
	return title, b.String()
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
