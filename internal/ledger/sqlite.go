package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteLedger is the durable Ledger implementation. The imported_id column
// carries a UNIQUE index; duplicate detection rides on the constraint
// violation rather than a read-check, so it holds even across processes.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger database at path and ensures the
// schema exists. Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// The run is strictly sequential, and a single connection keeps
	// ":memory:" databases coherent across statements.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		offbudget  INTEGER NOT NULL DEFAULT 0,
		closed     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id          TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL,
		date        TEXT NOT NULL,
		amount      INTEGER NOT NULL,
		payee_name  TEXT NOT NULL,
		imported_id TEXT NOT NULL UNIQUE,
		notes       TEXT NOT NULL DEFAULT '',
		cleared     INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(date DESC);
	`
	_, err := l.db.Exec(schema)
	return err
}

// ImportedIDs implements Ledger.
func (l *SQLiteLedger) ImportedIDs(ctx context.Context, accountID string) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT imported_id FROM transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query imported ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan imported id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// SumAmounts implements Ledger.
func (l *SQLiteLedger) SumAmounts(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ?`, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum amounts: %w", err)
	}
	return sum, nil
}

// WriteTransaction implements Ledger.
func (l *SQLiteLedger) WriteTransaction(ctx context.Context, txn *Transaction) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, date, amount, payee_name, imported_id, notes, cleared, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), txn.AccountID, txn.Date, txn.Amount, txn.PayeeName,
		txn.ImportedID, txn.Notes, boolToInt(txn.Cleared), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		// modernc.org/sqlite surfaces constraint violations as plain errors;
		// the message is the stable way to recognize them.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("write transaction: %w", err)
	}
	return nil
}

// DebitsSince implements Ledger.
func (l *SQLiteLedger) DebitsSince(ctx context.Context, date string) ([]Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT account_id, date, amount, payee_name, imported_id, notes, cleared
		FROM transactions
		WHERE amount < 0 AND date >= ?
		ORDER BY date DESC, created_at DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("query debits: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		var cleared int
		if err := rows.Scan(&t.AccountID, &t.Date, &t.Amount, &t.PayeeName, &t.ImportedID, &t.Notes, &cleared); err != nil {
			return nil, fmt.Errorf("scan debit: %w", err)
		}
		t.Cleared = cleared != 0
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ListAccounts implements Ledger.
func (l *SQLiteLedger) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, name, offbudget, closed FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var offbudget, closed int
		if err := rows.Scan(&a.ID, &a.Name, &offbudget, &closed); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.OffBudget = offbudget != 0
		a.Closed = closed != 0
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateAccount implements Ledger.
func (l *SQLiteLedger) CreateAccount(ctx context.Context, account *Account) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, offbudget, closed, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Name, boolToInt(account.OffBudget), boolToInt(account.Closed),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
