// Package notify delivers finished run summaries and alert strings to
// outbound channels. Delivery is fire-and-forget: failures are logged and
// never block or fail the run.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/metrics"
)

// Notifier is one outbound channel.
type Notifier interface {
	// SendSummary delivers a finished run summary.
	SendSummary(ctx context.Context, summary *metrics.Summary) error

	// SendMessage delivers a plain alert string.
	SendMessage(ctx context.Context, text string) error
}

// Service fans out to all configured notifiers.
type Service struct {
	Notifiers []Notifier
}

// NewService returns a Service over the given notifiers.
func NewService(notifiers ...Notifier) *Service {
	return &Service{Notifiers: notifiers}
}

// SendSummary delivers the summary to every notifier, logging failures.
func (s *Service) SendSummary(ctx context.Context, summary *metrics.Summary) {
	log := logger.FromContext(ctx)
	for _, n := range s.Notifiers {
		if err := n.SendSummary(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("Notification failed")
		}
	}
}

// SendMessage delivers an alert string to every notifier, logging failures.
func (s *Service) SendMessage(ctx context.Context, text string) {
	log := logger.FromContext(ctx)
	for _, n := range s.Notifiers {
		if err := n.SendMessage(ctx, text); err != nil {
			log.Warn().Err(err).Msg("Notification failed")
		}
	}
}

// FormatSummary renders a run summary as a Telegram-HTML message: run-level
// counts followed by one line per source.
func FormatSummary(summary *metrics.Summary) string {
	icon := "✅"
	if summary.Failures > 0 {
		icon = "⚠️"
	}

	lines := []string{
		fmt.Sprintf("%s <b>Import Summary</b>", icon),
		"",
		fmt.Sprintf("🏦 Sources: %d/%d (%.0f%%)", summary.Successes, summary.TotalSources, summary.SuccessRate),
		fmt.Sprintf("📥 Transactions: %d imported", summary.TotalTransactions),
		fmt.Sprintf("🔄 Duplicates: %d skipped", summary.TotalDuplicates),
		fmt.Sprintf("⏱ Duration: %.1fs", summary.TotalDuration.Seconds()),
	}

	if len(summary.Sources) > 0 {
		lines = append(lines, "")
		for _, m := range summary.Sources {
			si := "✅"
			if m.Status == metrics.StatusFailure {
				si = "❌"
			}
			lines = append(lines, fmt.Sprintf("%s %s: %d txns %.1fs", si, m.Name, m.Imported, m.Duration.Seconds()))
			if m.ReconciliationStatus != "" {
				lines = append(lines, fmt.Sprintf("   🔄 Reconciliation: %s", m.ReconciliationStatus))
			}
			if m.Error != "" {
				lines = append(lines, fmt.Sprintf("   ❌ %s", escapeHTML(m.Error)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
