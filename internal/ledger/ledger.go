// Package ledger abstracts the persistent ledger behind a narrow capability
// set so the import pipeline can be tested against an in-memory fake. The
// ledger is the sole source of truth for "already imported": every row
// carries an opaque dedup key (imported_id) and a write whose key already
// exists fails with ErrDuplicate.
package ledger

import (
	"context"
	"errors"
)

// ErrDuplicate signals that a row with the same imported_id already exists.
// Callers treat it as an expected outcome, not a failure.
var ErrDuplicate = errors.New("transaction already exists")

// Transaction is one ledger row. Amount is in minor units; Date is a
// YYYY-MM-DD calendar date string.
type Transaction struct {
	AccountID  string `json:"account"`
	Date       string `json:"date"`
	Amount     int64  `json:"amount"`
	PayeeName  string `json:"payee_name"`
	ImportedID string `json:"imported_id"`
	Notes      string `json:"notes"`
	Cleared    bool   `json:"cleared"`
}

// Account is a ledger account.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OffBudget bool   `json:"offbudget"`
	Closed    bool   `json:"closed"`
}

// Ledger is the capability set the core needs from the ledger collaborator.
type Ledger interface {
	// ImportedIDs returns the set of dedup keys already stored for an
	// account, as a single batched read.
	ImportedIDs(ctx context.Context, accountID string) (map[string]bool, error)

	// SumAmounts returns the signed sum of all transaction amounts for an
	// account, in minor units.
	SumAmounts(ctx context.Context, accountID string) (int64, error)

	// WriteTransaction persists one row. It returns ErrDuplicate when the
	// row's imported_id already exists.
	WriteTransaction(ctx context.Context, txn *Transaction) error

	// DebitsSince returns all transactions with a negative amount dated on
	// or after the given YYYY-MM-DD date, most recent first.
	DebitsSince(ctx context.Context, date string) ([]Transaction, error)

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]Account, error)

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *Account) error
}
