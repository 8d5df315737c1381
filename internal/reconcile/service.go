// Package reconcile posts a single balancing adjustment per account per
// calendar day, correcting the ledger's running sum to the balance the
// source reported. Idempotence rides on the same dedup-key mechanism as
// regular imports.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/ledger"
	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/money"
)

// Status is the outcome of one reconciliation call.
type Status string

const (
	// StatusCreated means an adjustment was written.
	StatusCreated Status = "created"
	// StatusSkipped means the ledger already matched the reported balance.
	StatusSkipped Status = "skipped"
	// StatusAlreadyReconciled means an adjustment for today already exists.
	StatusAlreadyReconciled Status = "already-reconciled"
)

// Result reports the reconciliation outcome. Diff is in minor units.
type Result struct {
	Status Status
	Diff   int64
}

// Service reconciles account balances against externally reported ones.
type Service struct {
	Ledger ledger.Ledger

	// Now is overridable in tests. Nil means time.Now.
	Now func() time.Time
}

// NewService returns a Service reconciling against l.
func NewService(l ledger.Ledger) *Service {
	return &Service{Ledger: l}
}

// Reconcile compares the account's ledger sum with the expected balance and
// writes a balancing adjustment when they differ. The adjustment's dedup key
// is reconciliation-{accountID}-{date}, so at most one exists per account per
// day; a duplicate write signal from the ledger means today's adjustment
// already exists and is reported as already-reconciled. Any other failure
// propagates: a silently dropped reconciliation would leave the balance
// permanently wrong.
func (s *Service) Reconcile(ctx context.Context, accountID string, expectedBalance decimal.Decimal, currency string) (*Result, error) {
	currentSum, err := s.Ledger.SumAmounts(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("read balance for %s: %w", accountID, err)
	}

	diff := money.ToCents(expectedBalance) - currentSum
	if diff == 0 {
		return &Result{Status: StatusSkipped}, nil
	}

	today := money.FormatDate(s.now())
	row := &ledger.Transaction{
		AccountID:  accountID,
		Date:       today,
		Amount:     diff,
		PayeeName:  "Reconciliation",
		ImportedID: fmt.Sprintf("reconciliation-%s-%s", accountID, today),
		Notes:      fmt.Sprintf("Balance adjustment: Expected %s %s", expectedBalance.String(), currency),
		Cleared:    true,
	}

	err = s.Ledger.WriteTransaction(ctx, row)
	switch {
	case err == nil:
		log := logger.FromContext(ctx)
		log.Info().
			Str("account_id", accountID).
			Int64("diff", diff).
			Msg("Reconciliation adjustment created")
		return &Result{Status: StatusCreated, Diff: diff}, nil
	case errors.Is(err, ledger.ErrDuplicate):
		return &Result{Status: StatusAlreadyReconciled}, nil
	default:
		return nil, fmt.Errorf("write reconciliation for %s: %w", accountID, err)
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
