package relational

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

// Connection implements adapter.Connection over a database/sql handle.
type Connection struct {
	id        string
	db        *sql.DB
	dialect   Dialect
	connected int32
}

func newConnection(db *sql.DB, dialect Dialect) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		db:        db,
		dialect:   dialect,
		connected: 1,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Kind returns the adapter kind.
func (c *Connection) Kind() capability.Kind { return capability.Relational }

// Dialect returns the dialect this connection speaks.
func (c *Connection) Dialect() Dialect { return c.dialect }

// DB returns the underlying database/sql handle.
func (c *Connection) DB() *sql.DB { return c.db }

// Raw returns the underlying *sql.DB.
func (c *Connection) Raw() any { return c.db }

// Ping checks the connection with one round trip.
func (c *Connection) Ping(ctx context.Context) error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return adapter.ErrConnectionClosed
	}
	return c.db.PingContext(ctx)
}

// Close releases the handle. Calling it again is a no-op.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	return c.db.Close()
}

// ListTables enumerates user tables in sorted order.
func (c *Connection) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.ListTablesQuery())
	if err != nil {
		return nil, adapter.WrapError(capability.Relational, "list_tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.WrapError(capability.Relational, "list_tables", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DropTable drops one table if it exists.
func (c *Connection) DropTable(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, c.dialect.DropTableSQL(name)); err != nil {
		return adapter.WrapError(capability.Relational, "drop_table", err)
	}
	return nil
}

// ColumnDef describes one column of an eagerly synced table.
type ColumnDef struct {
	Name       string
	Type       string
	Nullable   bool
	Unique     bool
	PrimaryKey bool
}

// CreateTableIfNotExists emits best-effort DDL for a model's table. This is
// the non-production eager sync path, not the migration runner.
func (c *Connection) CreateTableIfNotExists(ctx context.Context, table string, columns []ColumnDef) error {
	if len(columns) == 0 {
		return adapter.NewConfigurationError(capability.Relational, "columns",
			fmt.Sprintf("model %q has no attributes to sync", table))
	}
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		def := fmt.Sprintf("%s %s", c.dialect.QuoteIdentifier(col.Name), c.dialect.ColumnType(col.Type))
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		} else {
			if !col.Nullable {
				def += " NOT NULL"
			}
			if col.Unique {
				def += " UNIQUE"
			}
		}
		defs = append(defs, def)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		c.dialect.QuoteIdentifier(table), strings.Join(defs, ", "))
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return adapter.WrapError(capability.Relational, "eager_sync", err)
	}
	return nil
}

// Seed inserts initial rows into a table. Column order is fixed by sorting
// so the emitted SQL is deterministic.
func (c *Connection) Seed(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = c.dialect.QuoteIdentifier(col)
		placeholders[i] = "?"
	}
	query := c.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.dialect.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", ")))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return adapter.WrapError(capability.Relational, "seed", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return adapter.WrapError(capability.Relational, "seed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return adapter.WrapError(capability.Relational, "seed", err)
	}
	return nil
}
