// Package schemafirst implements the persistence adapter for schema-first
// generated clients. The application hands the orchestration layer an
// already-generated client; schema evolution belongs to the client's own
// external tooling, which this layer invokes as an opaque subprocess and
// checks only for success or failure.
package schemafirst

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

// Client is the contract a generated client handle must satisfy. The config
// carries it as an opaque value; this adapter asserts it here.
type Client interface {
	// Connect opens the client's underlying engine.
	Connect(ctx context.Context) error

	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	// Close shuts the engine down.
	Close(ctx context.Context) error

	// Collections returns the names of the collections the generated
	// client exposes; model discovery introspects these.
	Collections() []string
}

// Adapter implements adapter.PersistenceAdapter for schema-first clients.
type Adapter struct {
	logger *zap.SugaredLogger
}

// NewAdapter creates the schema-first adapter.
func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

// Kind returns the adapter kind identifier.
func (a *Adapter) Kind() capability.Kind { return capability.SchemaFirst }

// Capabilities returns the capability metadata for the schema-first kind.
func (a *Adapter) Capabilities() capability.Capability {
	return capability.MustGet(capability.SchemaFirst)
}

// Connect asserts the configured client handle and opens it.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	client, ok := config.Client.(Client)
	if !ok {
		return nil, adapter.NewConfigurationError(capability.SchemaFirst, "client",
			"configured handle does not implement the schema-first client contract")
	}
	if err := client.Connect(ctx); err != nil {
		return nil, adapter.NewConnectionError(capability.SchemaFirst, config.Host, config.Port, err)
	}
	return &Connection{
		id:         uuid.NewString(),
		client:     client,
		tool:       config.Tool,
		schemaPath: config.SchemaPath,
		logger:     a.logger,
		connected:  1,
	}, nil
}

// Connection implements adapter.Connection over a generated client.
type Connection struct {
	id         string
	client     Client
	tool       string
	schemaPath string
	logger     *zap.SugaredLogger
	connected  int32
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Kind returns the adapter kind.
func (c *Connection) Kind() capability.Kind { return capability.SchemaFirst }

// Client returns the generated client handle.
func (c *Connection) Client() Client { return c.client }

// Raw returns the generated client handle.
func (c *Connection) Raw() any { return c.client }

// Ping delegates to the client.
func (c *Connection) Ping(ctx context.Context) error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return adapter.ErrConnectionClosed
	}
	return c.client.Ping(ctx)
}

// Close shuts the client down. Calling it again is a no-op.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	return c.client.Close(context.Background())
}
