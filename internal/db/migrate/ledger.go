package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/relational"
)

// LedgerTable is the persistent record of applied migrations: one column,
// one row per applied name, living in the same database as application data.
const LedgerTable = "trellis_migrations"

// LedgerUnavailableError marks the ledger as unusable; the migration
// subsystem cannot run without it.
type LedgerUnavailableError struct {
	Operation string
	Cause     error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("migration ledger unavailable (%s): %v", e.Operation, e.Cause)
}

func (e *LedgerUnavailableError) Unwrap() error { return e.Cause }

func (e *LedgerUnavailableError) Is(target error) bool {
	return target == adapter.ErrLedgerUnavailable
}

// Ledger reads and writes the applied-migrations table. Provisioning is
// lazy: EnsureTable runs before any pending/applied computation and is safe
// to call on every invocation.
type Ledger struct {
	db      *sql.DB
	dialect relational.Dialect
}

// NewLedger builds a ledger over a relational connection.
func NewLedger(conn *relational.Connection) *Ledger {
	return &Ledger{db: conn.DB(), dialect: conn.Dialect()}
}

// EnsureTable creates the ledger table if it does not exist yet.
func (l *Ledger) EnsureTable(ctx context.Context) error {
	var exists bool
	if err := l.db.QueryRowContext(ctx, l.dialect.TableExistsQuery(), LedgerTable).Scan(&exists); err != nil {
		return &LedgerUnavailableError{Operation: "introspect", Cause: err}
	}
	if exists {
		return nil
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (name TEXT PRIMARY KEY)",
		l.dialect.QuoteIdentifier(LedgerTable))
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return &LedgerUnavailableError{Operation: "create", Cause: err}
	}
	return nil
}

// Applied returns the recorded migration names in ascending order.
func (l *Ledger) Applied(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s ORDER BY name",
		l.dialect.QuoteIdentifier(LedgerTable))
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &LedgerUnavailableError{Operation: "read", Cause: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &LedgerUnavailableError{Operation: "read", Cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &LedgerUnavailableError{Operation: "read", Cause: err}
	}
	return names, nil
}

// Record appends one applied name inside the caller's transaction, so the
// migration's forward SQL and its ledger row commit as a single step.
func (l *Ledger) Record(ctx context.Context, tx *sql.Tx, name string) error {
	query := l.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (name) VALUES (?)",
		l.dialect.QuoteIdentifier(LedgerTable)))
	if _, err := tx.ExecContext(ctx, query, name); err != nil {
		return &LedgerUnavailableError{Operation: "record", Cause: err}
	}
	return nil
}

// Remove deletes one applied name inside the caller's transaction.
func (l *Ledger) Remove(ctx context.Context, tx *sql.Tx, name string) error {
	query := l.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE name = ?",
		l.dialect.QuoteIdentifier(LedgerTable)))
	if _, err := tx.ExecContext(ctx, query, name); err != nil {
		return &LedgerUnavailableError{Operation: "remove", Cause: err}
	}
	return nil
}
