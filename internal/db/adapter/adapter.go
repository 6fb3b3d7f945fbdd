// Package adapter defines the contracts every persistence backend must
// implement. The orchestration layer is written once against these
// interfaces; the concrete relational, document, schema-first and memory
// variants live under internal/db/backends.
package adapter

import (
	"context"

	"github.com/trellishq/trellis/internal/db/capability"
)

// PersistenceAdapter is the interchangeable backend-specific implementation
// of connect/load/migrate behind one common contract.
type PersistenceAdapter interface {
	// Kind returns the canonical adapter kind identifier.
	Kind() capability.Kind

	// Capabilities returns the capability metadata for this kind.
	Capabilities() capability.Capability

	// Connect establishes a live connection. Relational implementations
	// create the target database when it does not exist yet and retry
	// exactly once; all other failures propagate unchanged.
	Connect(ctx context.Context, config ConnectionConfig) (Connection, error)
}

// Connection is the live, adapter-specific persistence session. Exactly one
// instance exists per process; it is owned by the lifecycle facade and must
// be released explicitly on shutdown.
type Connection interface {
	// ID returns a per-process unique identifier for log correlation.
	ID() string

	// Kind returns the adapter kind that produced this connection.
	Kind() capability.Kind

	// Ping issues one trivial round trip through the handle.
	Ping(ctx context.Context) error

	// Close releases the connection. Safe to call more than once.
	Close() error

	// Raw returns the underlying driver-specific handle. Type assertion is
	// required; use only where the common interfaces do not cover an
	// operation.
	Raw() any
}

// TableDropper is implemented by connections that can enumerate and drop the
// tables or collections backing the loaded models. Used by the undo CLI
// primitives and the destructive revert-all reset.
type TableDropper interface {
	ListTables(ctx context.Context) ([]string, error)
	DropTable(ctx context.Context, name string) error
}

// Seeder is implemented by connections that accept initial row data for a
// named table or collection.
type Seeder interface {
	Seed(ctx context.Context, table string, rows []map[string]any) error
}
