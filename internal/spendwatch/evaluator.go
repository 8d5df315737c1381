// Package spendwatch evaluates spending-threshold rules against recently
// imported ledger data. It is advisory: any read failure degrades to "no
// alert" and never fails the run.
package spendwatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/ledger"
	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/money"
)

// Rule is one spending-watch rule. Rules are stateless and evaluated fresh
// each run against ledger data.
type Rule struct {
	// AlertFromAmount is the threshold in unit currency; the rule triggers
	// when matched spending strictly exceeds it.
	AlertFromAmount decimal.Decimal `mapstructure:"alertFromAmount"`

	// NumOfDayToCount is the time-window length in days, today inclusive.
	NumOfDayToCount int `mapstructure:"numOfDayToCount"`

	// WatchPayees restricts the rule to transactions whose display text
	// contains any of these substrings, case-insensitively. Empty means
	// match all.
	WatchPayees []string `mapstructure:"watchPayees"`
}

// maxDetailLines caps the per-rule transaction list in the alert message.
const maxDetailLines = 5

// Evaluator evaluates rules against the ledger.
type Evaluator struct {
	Ledger ledger.Ledger

	// Now is overridable in tests. Nil means time.Now.
	Now func() time.Time
}

// NewEvaluator returns an Evaluator reading from l.
func NewEvaluator(l ledger.Ledger) *Evaluator {
	return &Evaluator{Ledger: l}
}

type ruleResult struct {
	rule       Rule
	totalSpent int64
	matched    []ledger.Transaction
}

// Evaluate runs every rule and renders the triggered ones into a single
// alert message. One batched debit read covers the largest window; each rule
// then filters the shared result set to its own window and payees. Returns
// ok=false when nothing triggered or the read failed.
func (e *Evaluator) Evaluate(ctx context.Context, rules []Rule) (string, bool) {
	if len(rules) == 0 {
		return "", false
	}
	log := logger.FromContext(ctx)

	maxDays := 0
	for _, r := range rules {
		if r.NumOfDayToCount > maxDays {
			maxDays = r.NumOfDayToCount
		}
	}

	debits, err := e.Ledger.DebitsSince(ctx, e.windowStart(maxDays))
	if err != nil {
		log.Error().Err(err).Msg("Spending watch read failed, skipping alert")
		return "", false
	}

	var triggered []ruleResult
	for _, rule := range rules {
		res := e.evaluateRule(rule, debits)
		if res.totalSpent > money.ToCents(rule.AlertFromAmount) {
			triggered = append(triggered, res)
		}
	}
	if len(triggered) == 0 {
		return "", false
	}

	sections := make([]string, len(triggered))
	for i, res := range triggered {
		sections[i] = formatRule(res)
	}
	return "🔔 <b>Spending Watch</b>\n\n" + strings.Join(sections, "\n\n"), true
}

func (e *Evaluator) evaluateRule(rule Rule, debits []ledger.Transaction) ruleResult {
	cutoff := e.windowStart(rule.NumOfDayToCount)

	var matched []ledger.Transaction
	var total int64
	for _, t := range debits {
		if t.Date < cutoff {
			continue
		}
		if !matchesPayees(t.PayeeName, rule.WatchPayees) {
			continue
		}
		matched = append(matched, t)
		if t.Amount < 0 {
			total += -t.Amount
		} else {
			total += t.Amount
		}
	}
	return ruleResult{rule: rule, totalSpent: total, matched: matched}
}

// windowStart returns the first calendar date inside a window of the given
// length ending today.
func (e *Evaluator) windowStart(days int) string {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	return money.FormatDate(now.AddDate(0, 0, -days+1))
}

func matchesPayees(payee string, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	lower := strings.ToLower(payee)
	for _, w := range watch {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func formatRule(res ruleResult) string {
	payeeLabel := "All payees"
	if len(res.rule.WatchPayees) > 0 {
		payeeLabel = strings.Join(res.rule.WatchPayees, ", ")
	}
	dayLabel := fmt.Sprintf("%d days", res.rule.NumOfDayToCount)
	if res.rule.NumOfDayToCount == 1 {
		dayLabel = "1 day"
	}

	lines := []string{fmt.Sprintf("⚠️ %s: %s in %s (limit: %s)",
		payeeLabel, money.FormatCents(res.totalSpent), dayLabel,
		money.FormatCents(money.ToCents(res.rule.AlertFromAmount)))}

	for i, t := range res.matched {
		if i == maxDetailLines {
			break
		}
		lines = append(lines, fmt.Sprintf("  %s  %s", money.FormatCents(t.Amount), t.PayeeName))
	}
	if overflow := len(res.matched) - maxDetailLines; overflow > 0 {
		lines = append(lines, fmt.Sprintf("  ... and %d more", overflow))
	}
	return strings.Join(lines, "\n")
}
