// Package document implements the persistence adapter for MongoDB. Document
// stores auto-provision databases and collections on first write, so the
// bootstrap path has no create-database step and the kind reports no ledger
// support.
package document

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

const connectTimeout = 10 * time.Second

// Adapter implements adapter.PersistenceAdapter for MongoDB.
type Adapter struct {
	logger *zap.SugaredLogger
}

// NewAdapter creates the document adapter.
func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

// Kind returns the adapter kind identifier.
func (a *Adapter) Kind() capability.Kind { return capability.Document }

// Capabilities returns the capability metadata for the document kind.
func (a *Adapter) Capabilities() capability.Capability {
	return capability.MustGet(capability.Document)
}

// Connect establishes a connection and verifies it with a primary ping.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	uri := config.DSN
	if uri == "" {
		uri = buildURI(config)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, adapter.NewConnectionError(capability.Document, config.Host, config.Port, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, adapter.NewConnectionError(capability.Document, config.Host, config.Port, err)
	}

	database := config.Database
	if database == "" {
		database = databaseFromURI(uri)
	}
	if database == "" {
		_ = client.Disconnect(context.Background())
		return nil, adapter.NewConfigurationError(capability.Document, "database", "no database name in config or URI")
	}

	return newConnection(client, client.Database(database)), nil
}

func buildURI(config adapter.ConnectionConfig) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Path:   "/" + config.Database,
	}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
		u.RawQuery = "authSource=admin"
	}
	return u.String()
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if len(u.Path) > 1 {
		return u.Path[1:]
	}
	return ""
}
