package spendwatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/ledger"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)
}

func newEvaluator(l ledger.Ledger) *Evaluator {
	e := NewEvaluator(l)
	e.Now = fixedNow
	return e
}

func debit(t *testing.T, l ledger.Ledger, date string, amount int64, payee, key string) {
	t.Helper()
	err := l.WriteTransaction(context.Background(), &ledger.Transaction{
		AccountID: "acct-1", Date: date, Amount: amount, PayeeName: payee, ImportedID: key, Cleared: true,
	})
	if err != nil {
		t.Fatalf("seed debit: %v", err)
	}
}

func rule(threshold string, days int, payees ...string) Rule {
	return Rule{
		AlertFromAmount: decimal.RequireFromString(threshold),
		NumOfDayToCount: days,
		WatchPayees:     payees,
	}
}

func TestEvaluateThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("triggers above threshold", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		debit(t, l, "2024-03-07", -15000, "Shop", "k1")

		msg, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("100", 1)})
		if !ok {
			t.Fatal("rule did not trigger for 150 spent against limit 100")
		}
		if !strings.Contains(msg, "150.00") {
			t.Errorf("message missing total: %q", msg)
		}
	})

	t.Run("does not trigger below threshold", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		debit(t, l, "2024-03-07", -5000, "Shop", "k1")

		if _, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("100", 1)}); ok {
			t.Error("rule triggered for 50 spent against limit 100")
		}
	})

	t.Run("threshold is strict", func(t *testing.T) {
		l := ledger.NewMemoryLedger()
		debit(t, l, "2024-03-07", -10000, "Shop", "k1")

		if _, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("100", 1)}); ok {
			t.Error("rule triggered at exactly the threshold")
		}
	})
}

func TestEvaluatePayeeFilter(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	debit(t, l, "2024-03-07", -4990, "NETFLIX INC", "k1")
	debit(t, l, "2024-03-07", -50000, "Market", "k2")

	msg, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("10", 1, "Netflix")})
	if !ok {
		t.Fatal("netflix rule did not trigger")
	}
	if !strings.Contains(msg, "49.90") {
		t.Errorf("matched total should be the Netflix line only: %q", msg)
	}
	if strings.Contains(msg, "Market") {
		t.Errorf("unmatched payee leaked into the message: %q", msg)
	}
}

func TestEvaluateWindow(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	debit(t, l, "2024-03-07", -4000, "today", "k1")
	debit(t, l, "2024-03-05", -4000, "three days ago", "k2")
	debit(t, l, "2024-03-01", -4000, "last week", "k3")

	// 3-day window covers 2024-03-05 through 2024-03-07: 80 spent.
	if _, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("100", 3)}); ok {
		t.Error("transactions outside the window were counted")
	}
	if _, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("70", 3)}); !ok {
		t.Error("in-window transactions were not counted")
	}
}

func TestEvaluatePerRuleWindowsShareOneRead(t *testing.T) {
	ctx := context.Background()
	l := &countingLedger{MemoryLedger: ledger.NewMemoryLedger()}
	debit(t, l.MemoryLedger, "2024-03-07", -20000, "Shop", "k1")
	debit(t, l.MemoryLedger, "2024-03-01", -20000, "Shop", "k2")

	rules := []Rule{rule("100", 1), rule("100", 7), rule("1000", 30)}
	msg, ok := newEvaluator(l).Evaluate(ctx, rules)
	if !ok {
		t.Fatal("expected at least one trigger")
	}
	if l.reads != 1 {
		t.Errorf("DebitsSince called %d times, want 1", l.reads)
	}
	// The 1-day rule sees 200, the 7-day rule 400, the 30-day rule stays
	// under its 1000 limit.
	if !strings.Contains(msg, "200.00") || !strings.Contains(msg, "400.00") {
		t.Errorf("per-rule windows not applied: %q", msg)
	}
	if strings.Count(msg, "⚠️") != 2 {
		t.Errorf("expected 2 triggered sections: %q", msg)
	}
}

func TestEvaluateTruncatesDetails(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	for i := 0; i < 8; i++ {
		debit(t, l, "2024-03-07", -10000, "Shop", string(rune('a'+i)))
	}

	msg, ok := newEvaluator(l).Evaluate(ctx, []Rule{rule("100", 1)})
	if !ok {
		t.Fatal("rule did not trigger")
	}
	if strings.Count(msg, "-100.00  Shop") != 5 {
		t.Errorf("expected 5 detail lines: %q", msg)
	}
	if !strings.Contains(msg, "... and 3 more") {
		t.Errorf("missing overflow count: %q", msg)
	}
}

func TestEvaluateEmptyRules(t *testing.T) {
	l := &countingLedger{MemoryLedger: ledger.NewMemoryLedger()}
	if _, ok := newEvaluator(l).Evaluate(context.Background(), nil); ok {
		t.Error("empty rule list produced an alert")
	}
	if l.reads != 0 {
		t.Errorf("empty rule list hit the ledger %d times", l.reads)
	}
}

func TestEvaluateReadFailureDegradesToNoAlert(t *testing.T) {
	l := &countingLedger{MemoryLedger: ledger.NewMemoryLedger(), readErr: errors.New("storage down")}
	if _, ok := newEvaluator(l).Evaluate(context.Background(), []Rule{rule("1", 1)}); ok {
		t.Error("read failure produced an alert")
	}
}

type countingLedger struct {
	*ledger.MemoryLedger
	reads   int
	readErr error
}

func (c *countingLedger) DebitsSince(ctx context.Context, date string) ([]ledger.Transaction, error) {
	c.reads++
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.MemoryLedger.DebitsSince(ctx, date)
}
