// Package source defines the boundary to external institution data feeds.
// A source is unreliable and slow; callers wrap every Fetch in timeout and
// retry layers and treat the result as read-only input.
package source

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one transaction as reported by a source. The only identity
// guarantee across runs is the optional stable Identifier; amounts are unit
// currency decimals. ChargedAmount is preferred over OriginalAmount.
type Transaction struct {
	Identifier     string           `json:"identifier,omitempty"`
	Date           time.Time        `json:"date"`
	ChargedAmount  *decimal.Decimal `json:"chargedAmount,omitempty"`
	OriginalAmount *decimal.Decimal `json:"originalAmount,omitempty"`
	Description    string           `json:"description"`
	Memo           string           `json:"memo,omitempty"`
}

// Account is one account in a source's fetch result.
type Account struct {
	AccountNumber string           `json:"accountNumber"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Txns          []Transaction    `json:"txns"`
}

// FetchResult is the outcome of one source fetch. Success=false with an
// ErrorMessage means the source itself reported failure; that is not
// retried further by the run loop.
type FetchResult struct {
	Success      bool      `json:"success"`
	Accounts     []Account `json:"accounts,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Credentials is the credential field set for one source. Each source name
// requires a different closed set of fields; see ValidateCredentials.
type Credentials map[string]string

// Source is an external institution's data feed.
type Source interface {
	// Fetch pulls accounts and transactions. startDate is a YYYY-MM-DD
	// lower bound, empty for the source's default range.
	Fetch(ctx context.Context, creds Credentials, startDate string) (*FetchResult, error)
}
