package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryLedger is an in-memory Ledger with the same duplicate semantics as
// the SQLite implementation. It backs the package tests and is safe for
// concurrent use.
type MemoryLedger struct {
	mu       sync.RWMutex
	txns     []Transaction
	byKey    map[string]bool
	accounts []Account
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byKey: make(map[string]bool)}
}

// ImportedIDs implements Ledger.
func (m *MemoryLedger) ImportedIDs(_ context.Context, accountID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[string]bool)
	for _, t := range m.txns {
		if t.AccountID == accountID {
			ids[t.ImportedID] = true
		}
	}
	return ids, nil
}

// SumAmounts implements Ledger.
func (m *MemoryLedger) SumAmounts(_ context.Context, accountID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, t := range m.txns {
		if t.AccountID == accountID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// WriteTransaction implements Ledger.
func (m *MemoryLedger) WriteTransaction(_ context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byKey[txn.ImportedID] {
		return ErrDuplicate
	}
	m.byKey[txn.ImportedID] = true
	m.txns = append(m.txns, *txn)
	return nil
}

// DebitsSince implements Ledger.
func (m *MemoryLedger) DebitsSince(_ context.Context, date string) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var debits []Transaction
	for _, t := range m.txns {
		if t.Amount < 0 && t.Date >= date {
			debits = append(debits, t)
		}
	}
	// Calendar date strings sort lexicographically.
	sort.SliceStable(debits, func(i, j int) bool { return debits[i].Date > debits[j].Date })
	return debits, nil
}

// ListAccounts implements Ledger.
func (m *MemoryLedger) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]Account, len(m.accounts))
	copy(accounts, m.accounts)
	return accounts, nil
}

// CreateAccount implements Ledger.
func (m *MemoryLedger) CreateAccount(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = append(m.accounts, *account)
	return nil
}

// Transactions returns a copy of all stored rows, in insertion order.
func (m *MemoryLedger) Transactions() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txns := make([]Transaction, len(m.txns))
	copy(txns, m.txns)
	return txns
}
