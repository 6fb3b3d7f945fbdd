// Package memory implements an in-process persistence adapter used for
// development and tests. It keeps table bookkeeping and seeded rows in maps;
// there is no durable state and no migration ledger.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

// Adapter implements adapter.PersistenceAdapter for the in-memory backend.
type Adapter struct {
	logger *zap.SugaredLogger
}

// NewAdapter creates the memory adapter.
func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

// Kind returns the adapter kind identifier.
func (a *Adapter) Kind() capability.Kind { return capability.Memory }

// Capabilities returns the capability metadata for the memory kind.
func (a *Adapter) Capabilities() capability.Capability {
	return capability.MustGet(capability.Memory)
}

// Connect returns a fresh, empty in-memory connection.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	return NewConnection(), nil
}

// Connection implements adapter.Connection with map-backed tables.
type Connection struct {
	id string

	mu        sync.RWMutex
	tables    map[string][]map[string]any
	connected bool
}

// NewConnection creates a connected in-memory connection. Tests construct
// these directly without going through the adapter.
func NewConnection() *Connection {
	return &Connection{
		id:        uuid.NewString(),
		tables:    make(map[string][]map[string]any),
		connected: true,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Kind returns the adapter kind.
func (c *Connection) Kind() capability.Kind { return capability.Memory }

// Raw returns the connection itself; there is no driver handle underneath.
func (c *Connection) Raw() any { return c }

// Ping reports whether the connection is still open.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return adapter.ErrConnectionClosed
	}
	return nil
}

// Close drops all state. Calling it again is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.tables = make(map[string][]map[string]any)
	return nil
}

// EnsureTable registers a table; instantiating a model creates its backing
// table here the way the relational eager sync would.
func (c *Connection) EnsureTable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		c.tables[name] = nil
	}
}

// ListTables enumerates registered tables in sorted order.
func (c *Connection) ListTables(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DropTable removes a table and its rows.
func (c *Connection) DropTable(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, name)
	return nil
}

// Seed appends rows to a table, creating it if needed.
func (c *Connection) Seed(ctx context.Context, table string, rows []map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return adapter.ErrConnectionClosed
	}
	c.tables[table] = append(c.tables[table], rows...)
	return nil
}

// Rows returns a copy of a table's seeded rows; tests assert on these.
func (c *Connection) Rows(table string) []map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows := c.tables[table]
	out := make([]map[string]any, len(rows))
	copy(out, rows)
	return out
}
