package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/ledger"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)
}

func newService(l ledger.Ledger) *Service {
	s := NewService(l)
	s.Now = fixedNow
	return s
}

func seed(t *testing.T, l ledger.Ledger, accountID string, amount int64, key string) {
	t.Helper()
	err := l.WriteTransaction(context.Background(), &ledger.Transaction{
		AccountID: accountID, Date: "2024-03-01", Amount: amount, PayeeName: "seed", ImportedID: key, Cleared: true,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestReconcileCreatesAdjustment(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	svc := newService(l)

	seed(t, l, "acct-1", 10000, "k1")

	// Reported balance 150.00 vs ledger sum 100.00.
	result, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Status != StatusCreated || result.Diff != 5000 {
		t.Errorf("result = %+v, want created/5000", result)
	}

	rows := l.Transactions()
	adj := rows[len(rows)-1]
	if adj.ImportedID != "reconciliation-acct-1-2024-03-07" {
		t.Errorf("dedup key = %q", adj.ImportedID)
	}
	if adj.PayeeName != "Reconciliation" || adj.Amount != 5000 || adj.Date != "2024-03-07" {
		t.Errorf("adjustment row = %+v", adj)
	}
	if adj.Notes != "Balance adjustment: Expected 150 ILS" {
		t.Errorf("notes = %q", adj.Notes)
	}
}

func TestReconcileConvergence(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	svc := newService(l)

	seed(t, l, "acct-1", 10000, "k1")

	first, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if first.Status != StatusCreated {
		t.Fatalf("first status = %s", first.Status)
	}

	// Same balance again the same day: the diff is now zero.
	second, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if second.Status != StatusSkipped || second.Diff != 0 {
		t.Errorf("second result = %+v, want skipped/0", second)
	}
}

func TestReconcileSameDayGuard(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	svc := newService(l)

	seed(t, l, "acct-1", 10000, "k1")

	if _, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS"); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	// A changed balance the same day computes a nonzero diff, but the
	// write collides with today's adjustment key.
	result, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("175"), "ILS")
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if result.Status != StatusAlreadyReconciled || result.Diff != 0 {
		t.Errorf("result = %+v, want already-reconciled/0", result)
	}
	if len(l.Transactions()) != 2 {
		t.Errorf("a second adjustment was written: %d rows", len(l.Transactions()))
	}
}

func TestReconcileSkipsWhenBalanced(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	svc := newService(l)

	seed(t, l, "acct-1", 15000, "k1")

	result, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", result.Status)
	}
	if len(l.Transactions()) != 1 {
		t.Error("skipped reconciliation wrote a row")
	}
}

func TestReconcileNegativeDiff(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	svc := newService(l)

	seed(t, l, "acct-1", 20000, "k1")

	result, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Status != StatusCreated || result.Diff != -5000 {
		t.Errorf("result = %+v, want created/-5000", result)
	}
}

// erroringLedger fails writes with a non-duplicate error.
type erroringLedger struct {
	*ledger.MemoryLedger
}

func (e *erroringLedger) WriteTransaction(ctx context.Context, txn *ledger.Transaction) error {
	return errors.New("storage down")
}

func TestReconcileWriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	svc := newService(&erroringLedger{ledger.NewMemoryLedger()})

	_, err := svc.Reconcile(ctx, "acct-1", decimal.RequireFromString("150"), "ILS")
	if err == nil {
		t.Fatal("Reconcile swallowed a non-duplicate write failure")
	}
}
