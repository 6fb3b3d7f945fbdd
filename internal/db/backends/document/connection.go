package document

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

// Connection implements adapter.Connection for MongoDB.
type Connection struct {
	id        string
	client    *mongo.Client
	db        *mongo.Database
	connected int32
}

func newConnection(client *mongo.Client, db *mongo.Database) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		client:    client,
		db:        db,
		connected: 1,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Kind returns the adapter kind.
func (c *Connection) Kind() capability.Kind { return capability.Document }

// Database returns the underlying mongo database handle.
func (c *Connection) Database() *mongo.Database { return c.db }

// Raw returns the underlying *mongo.Database.
func (c *Connection) Raw() any { return c.db }

// Ping checks the connection against the primary.
func (c *Connection) Ping(ctx context.Context) error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return adapter.ErrConnectionClosed
	}
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Calling it again is a no-op.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	return c.client.Disconnect(context.Background())
}

// ListTables enumerates collection names in sorted order.
func (c *Connection) ListTables(ctx context.Context) ([]string, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, adapter.WrapError(capability.Document, "list_collections", err)
	}
	sort.Strings(names)
	return names, nil
}

// DropTable drops one collection. Dropping a collection that does not exist
// is a no-op in MongoDB, matching the relational IF EXISTS behavior.
func (c *Connection) DropTable(ctx context.Context, name string) error {
	if err := c.db.Collection(name).Drop(ctx); err != nil {
		return adapter.WrapError(capability.Document, "drop_collection", err)
	}
	return nil
}

// Seed inserts initial documents into a collection.
func (c *Connection) Seed(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		docs[i] = row
	}
	if _, err := c.db.Collection(table).InsertMany(ctx, docs); err != nil {
		return adapter.WrapError(capability.Document, "seed", err)
	}
	return nil
}
