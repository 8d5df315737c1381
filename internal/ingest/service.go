// Package ingest deduplicates and imports batches of source transactions
// into the ledger. Exactly-once-per-dedup-key is the package's contract:
// re-importing the same batch yields duplicates, never second copies.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/ledger"
	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/money"
	"github.com/danamir/banksync/internal/source"
)

// Record is the per-transaction projection kept for metrics and summaries.
type Record struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// ImportResult reports the outcome of one batch import.
type ImportResult struct {
	Imported        int
	Duplicates      int
	Failed          int
	NewRecords      []Record
	ExistingRecords []Record
}

// Service imports source transactions for one account at a time.
type Service struct {
	Ledger ledger.Ledger
}

// NewService returns a Service writing to l.
func NewService(l ledger.Ledger) *Service {
	return &Service{Ledger: l}
}

// Import writes a batch of source transactions for one account. Duplicates
// are classified against a single batched read of the account's existing
// dedup keys, and again at write time for anything the pre-read missed. A
// row that fails for any other reason is logged and dropped; one bad row
// never aborts the batch.
func (s *Service) Import(ctx context.Context, sourceName, accountNumber, accountID string, txns []source.Transaction) (*ImportResult, error) {
	log := logger.FromContext(ctx)
	result := &ImportResult{}

	existing, err := s.Ledger.ImportedIDs(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("read existing dedup keys for %s: %w", accountID, err)
	}

	for _, txn := range txns {
		rec := Record{
			Date:        money.FormatDate(txn.Date),
			Description: description(txn),
			Amount:      money.ToCents(amountOf(txn)),
		}
		key := DedupKey(sourceName, accountNumber, txn)

		if existing[key] {
			result.Duplicates++
			result.ExistingRecords = append(result.ExistingRecords, rec)
			continue
		}

		row := &ledger.Transaction{
			AccountID:  accountID,
			Date:       rec.Date,
			Amount:     rec.Amount,
			PayeeName:  rec.Description,
			ImportedID: key,
			Notes:      notes(txn),
			Cleared:    true,
		}
		err := s.Ledger.WriteTransaction(ctx, row)
		switch {
		case err == nil:
			result.Imported++
			result.NewRecords = append(result.NewRecords, rec)
		case errors.Is(err, ledger.ErrDuplicate):
			result.Duplicates++
			result.ExistingRecords = append(result.ExistingRecords, rec)
		default:
			// Fire-and-forget per row; a systemic failure shows up as a
			// high failed count, not an aborted batch.
			result.Failed++
			log.Error().Err(err).Str("imported_id", key).Msg("Error importing transaction")
		}
	}

	log.Info().
		Str("source", sourceName).
		Str("account", accountNumber).
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("failed", result.Failed).
		Msg("Batch import complete")

	return result, nil
}

// GetOrCreateAccount looks an account up by exact id, creating it with a
// synthesized "{source} - {accountNumber}" display name when absent.
func (s *Service) GetOrCreateAccount(ctx context.Context, accountID, sourceName, accountNumber string) (*ledger.Account, error) {
	accounts, err := s.Ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].ID == accountID {
			return &accounts[i], nil
		}
	}

	account := &ledger.Account{
		ID:   accountID,
		Name: fmt.Sprintf("%s - %s", sourceName, accountNumber),
	}
	log := logger.FromContext(ctx)
	log.Info().Str("account_id", accountID).Str("name", account.Name).Msg("Creating new account")
	if err := s.Ledger.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account %s: %w", accountID, err)
	}
	return account, nil
}

// DedupKey builds the row's dedup key: the stable identifier when the source
// provides one, otherwise the date plus the raw unit amount. Persisted
// verbatim, so the format must stay bit-exact.
func DedupKey(sourceName, accountNumber string, txn source.Transaction) string {
	if txn.Identifier != "" {
		return fmt.Sprintf("%s-%s-%s", sourceName, accountNumber, txn.Identifier)
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		sourceName, accountNumber, money.FormatDate(txn.Date), keyAmount(txn).String())
}

// amountOf prefers the charged amount, falling back to the original amount
// only when charged is absent.
func amountOf(txn source.Transaction) decimal.Decimal {
	if txn.ChargedAmount != nil {
		return *txn.ChargedAmount
	}
	if txn.OriginalAmount != nil {
		return *txn.OriginalAmount
	}
	return decimal.Zero
}

// keyAmount mirrors amountOf except that a zero charged amount also falls
// through to the original amount, matching the persisted key format.
func keyAmount(txn source.Transaction) decimal.Decimal {
	if txn.ChargedAmount != nil && !txn.ChargedAmount.IsZero() {
		return *txn.ChargedAmount
	}
	if txn.OriginalAmount != nil {
		return *txn.OriginalAmount
	}
	if txn.ChargedAmount != nil {
		return *txn.ChargedAmount
	}
	return decimal.Zero
}

func description(txn source.Transaction) string {
	if txn.Description == "" {
		return "Unknown"
	}
	return txn.Description
}

func notes(txn source.Transaction) string {
	if txn.Memo != "" {
		return txn.Memo
	}
	return txn.Description
}
