package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/relational"
)

// MigrationApplyError reports a migration whose forward or reverse SQL
// failed. The transaction is rolled back, so the ledger never records
// partial credit.
type MigrationApplyError struct {
	Name  string
	Cause error
}

func (e *MigrationApplyError) Error() string {
	return fmt.Sprintf("migration %q failed: %v", e.Name, e.Cause)
}

func (e *MigrationApplyError) Unwrap() error { return e.Cause }

// Status is the non-mutating view of the ledger against the universe.
type Status struct {
	Pending []string
	Applied []string
}

// Runner applies and reverts migrations strictly in ascending order against
// one relational connection. It never parallelizes: later migrations assume
// earlier schema changes are visible.
type Runner struct {
	conn   *relational.Connection
	source *Source
	ledger *Ledger
	logger *zap.SugaredLogger
}

// NewRunner builds a runner over a connection and a scanned source.
func NewRunner(conn *relational.Connection, source *Source, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		conn:   conn,
		source: source,
		ledger: NewLedger(conn),
		logger: logger,
	}
}

// Ledger exposes the runner's ledger, mainly for status tooling.
func (r *Runner) Ledger() *Ledger { return r.ledger }

// Pending returns universe minus applied, preserving ascending order.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.ledger.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}
	var pending []Migration
	for _, m := range r.source.All() {
		if _, ok := done[m.Name]; !ok {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Apply runs one migration's forward SQL and the ledger insert in a single
// transaction. On failure the transaction rolls back and the ledger is
// exactly as it was before the attempt.
func (r *Runner) Apply(ctx context.Context, m Migration) error {
	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return &MigrationApplyError{Name: m.Name, Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return &MigrationApplyError{Name: m.Name, Cause: err}
	}
	if err := r.ledger.Record(ctx, tx, m.Name); err != nil {
		return &MigrationApplyError{Name: m.Name, Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationApplyError{Name: m.Name, Cause: err}
	}
	r.logger.Infow("migration applied", "migration", m.Name)
	return nil
}

// ApplyAll applies every pending migration in ascending order, stopping at
// the first failure. The returned names are the migrations actually
// committed in this run, so callers can tell partial from full success.
func (r *Runner) ApplyAll(ctx context.Context) ([]string, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(pending))
	for _, m := range pending {
		if err := r.Apply(ctx, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// RevertLast reverts the lexicographically greatest applied migration: its
// down SQL and the ledger delete run in one transaction.
func (r *Runner) RevertLast(ctx context.Context) (string, error) {
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return "", err
	}
	applied, err := r.ledger.Applied(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", adapter.ErrNothingToUndo
	}
	name := applied[len(applied)-1]
	m, ok := r.source.Get(name)
	if !ok {
		return "", &MigrationApplyError{Name: name,
			Cause: fmt.Errorf("ledger row has no matching migration file")}
	}
	if !m.HasDown {
		return "", &MigrationApplyError{Name: name,
			Cause: fmt.Errorf("no down file for migration")}
	}

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return "", &MigrationApplyError{Name: name, Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		return "", &MigrationApplyError{Name: name, Cause: err}
	}
	if err := r.ledger.Remove(ctx, tx, name); err != nil {
		return "", &MigrationApplyError{Name: name, Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return "", &MigrationApplyError{Name: name, Cause: err}
	}
	r.logger.Infow("migration reverted", "migration", name)
	return name, nil
}

// RevertAll drops every managed table, ledger included. This is a
// destructive reset to empty, not a replay of down scripts, and works even
// when down files are missing.
func (r *Runner) RevertAll(ctx context.Context) error {
	tables, err := r.conn.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := r.conn.DropTable(ctx, table); err != nil {
			return err
		}
		r.logger.Infow("table dropped", "table", table)
	}
	return nil
}

// Status reports pending and applied names without mutating anything beyond
// the lazy ledger provisioning.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return Status{}, err
	}
	applied, err := r.ledger.Applied(ctx)
	if err != nil {
		return Status{}, err
	}
	names := make([]string, len(pending))
	for i, m := range pending {
		names[i] = m.Name
	}
	return Status{Pending: names, Applied: applied}, nil
}
