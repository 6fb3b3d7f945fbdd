// Package db is the lifecycle facade of the storage layer: it connects the
// configured adapter (creating the target database when a relational one is
// missing), loads the model registry, and hands both back as one value the
// rest of the application holds explicitly. One DB per process.
package db

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/document"
	"github.com/trellishq/trellis/internal/db/backends/memory"
	"github.com/trellishq/trellis/internal/db/backends/relational"
	"github.com/trellishq/trellis/internal/db/backends/schemafirst"
	"github.com/trellishq/trellis/internal/db/capability"
	"github.com/trellishq/trellis/internal/db/migrate"
	"github.com/trellishq/trellis/internal/db/models"
)

// DefaultAdapters builds a registry with every built-in backend registered.
func DefaultAdapters(logger *zap.SugaredLogger) *adapter.Registry {
	reg := adapter.NewRegistry()
	reg.Register(relational.NewAdapter(logger))
	reg.Register(document.NewAdapter(logger))
	reg.Register(schemafirst.NewAdapter(logger))
	reg.Register(memory.NewAdapter(logger))
	return reg
}

// Option adjusts how Open wires the facade; tests inject file systems and
// adapter registries through these.
type Option func(*openOptions)

type openOptions struct {
	adapters     *adapter.Registry
	modelsFS     fs.FS
	migrationsFS fs.FS
	client       any
}

// WithAdapters replaces the default adapter registry.
func WithAdapters(reg *adapter.Registry) Option {
	return func(o *openOptions) { o.adapters = reg }
}

// WithModelsFS overrides the models directory with an fs.FS.
func WithModelsFS(fsys fs.FS) Option {
	return func(o *openOptions) { o.modelsFS = fsys }
}

// WithMigrationsFS overrides the migrations directory with an fs.FS.
func WithMigrationsFS(fsys fs.FS) Option {
	return func(o *openOptions) { o.migrationsFS = fsys }
}

// WithClient supplies the generated client handle for the schema-first kind.
func WithClient(client any) Option {
	return func(o *openOptions) { o.client = client }
}

// DB is the live handle returned by Open. It owns the connection; callers
// stop their own work before Close.
type DB struct {
	kind         capability.Kind
	conn         adapter.Connection
	registry     *models.Registry
	migrationsFS fs.FS
	logger       *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// Open runs the one-shot startup sequence: connect (with the create-if-
// missing bootstrap for relational kinds), discover and load models, then
// optionally eager-sync schema in non-production environments.
func Open(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*DB, error) {
	o := openOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.adapters == nil {
		o.adapters = DefaultAdapters(logger)
	}

	connCfg := cfg.ConnectionConfig()
	connCfg.Client = o.client
	conn, err := o.adapters.Connect(ctx, connCfg)
	if err != nil {
		return nil, err
	}

	modelsFS := o.modelsFS
	if modelsFS == nil {
		modelsFS = dirFS(cfg.Database.ModelsDir)
	}
	migrationsFS := o.migrationsFS
	if migrationsFS == nil {
		migrationsFS = dirFS(cfg.Database.MigrationsDir)
	}

	var defs []models.Definition
	if modelsFS != nil {
		defs, err = models.DirSource(modelsFS, connCfg.Kind)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	registry, err := models.Load(ctx, conn, defs, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	d := &DB{
		kind:         connCfg.Kind,
		conn:         conn,
		registry:     registry,
		migrationsFS: migrationsFS,
		logger:       logger,
	}

	if cfg.Database.EagerSync {
		if err := d.eagerSync(ctx, cfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger.Infow("storage layer ready",
		"adapter", connCfg.Kind, "connection", conn.ID(),
		"models", len(registry.Models()), "degraded", registry.Degraded())
	return d, nil
}

// dirFS returns nil for empty or missing directories so startup works
// without a models or migrations directory on disk.
func dirFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	return os.DirFS(dir)
}

// eagerSync emits best-effort CREATE TABLE IF NOT EXISTS DDL from the loaded
// model attributes. It refuses to run in production and refuses to coexist
// with ledger-tracked migrations.
func (d *DB) eagerSync(ctx context.Context, cfg *config.Config) error {
	if cfg.IsProd() {
		return errors.New("eager schema sync is not allowed in prod")
	}
	if d.kind != capability.Relational {
		return adapter.WrapError(d.kind, "eager_sync", adapter.ErrOperationNotSupported)
	}
	if d.hasMigrations() {
		return adapter.ErrConflictingSchemaModes
	}

	conn := d.conn.(*relational.Connection)
	for _, model := range d.registry.Models() {
		columns := make([]relational.ColumnDef, 0, len(model.Attributes))
		for name, attr := range model.Attributes {
			columns = append(columns, relational.ColumnDef{
				Name:       name,
				Type:       attr.Type,
				Nullable:   attr.Nullable,
				Unique:     attr.Unique,
				PrimaryKey: attr.PrimaryKey,
			})
		}
		if err := conn.CreateTableIfNotExists(ctx, model.TableName, columns); err != nil {
			return err
		}
		d.logger.Debugw("eager-synced table", "table", model.TableName)
	}
	return nil
}

// hasMigrations reports whether the migrations directory holds any entries.
func (d *DB) hasMigrations() bool {
	if d.migrationsFS == nil {
		return false
	}
	entries, err := fs.ReadDir(d.migrationsFS, ".")
	return err == nil && len(entries) > 0
}

// Registry returns the model registry built at Open time.
func (d *DB) Registry() *models.Registry { return d.registry }

// Conn returns the live connection handle.
func (d *DB) Conn() adapter.Connection { return d.conn }

// Migrator builds the migration runner for this handle. Only relational
// kinds carry the ledger; other kinds get ErrOperationNotSupported.
func (d *DB) Migrator() (*migrate.Runner, error) {
	if !capability.SupportsMigrations(d.kind) {
		return nil, &adapter.UnsupportedOperationError{
			Kind:      d.kind,
			Operation: "migrations",
			Reason:    "only relational adapters carry the migration ledger",
		}
	}
	conn, ok := d.conn.(*relational.Connection)
	if !ok {
		return nil, &adapter.UnsupportedOperationError{Kind: d.kind, Operation: "migrations"}
	}
	if d.migrationsFS == nil {
		return nil, errors.New("migrations directory not configured")
	}
	source, err := migrate.LoadSource(d.migrationsFS)
	if err != nil {
		return nil, err
	}
	return migrate.NewRunner(conn, source, d.logger), nil
}

// Migrate runs the schema migration path for the connected kind: the
// ledger-tracked runner for relational adapters, the client's external tool
// for schema-first clients. The runner reports the names it applied; the
// external tool reports only success or failure.
func (d *DB) Migrate(ctx context.Context) ([]string, error) {
	switch d.kind {
	case capability.Relational:
		runner, err := d.Migrator()
		if err != nil {
			return nil, err
		}
		return runner.ApplyAll(ctx)
	case capability.SchemaFirst:
		conn, ok := d.conn.(*schemafirst.Connection)
		if !ok {
			return nil, &adapter.UnsupportedOperationError{Kind: d.kind, Operation: "migrate"}
		}
		return nil, conn.Deploy(ctx)
	default:
		return nil, &adapter.UnsupportedOperationError{
			Kind:      d.kind,
			Operation: "migrate",
			Reason:    "no migration path for this adapter",
		}
	}
}

// Seed inserts rows through the backend into the table backing a model.
func (d *DB) Seed(ctx context.Context, model string, rows []map[string]any) error {
	m, ok := d.registry.Model(model)
	if !ok {
		return &models.ModelLoadError{Name: model, Cause: errors.New("model not in registry")}
	}
	seeder, ok := d.conn.(adapter.Seeder)
	if !ok {
		return &adapter.UnsupportedOperationError{Kind: d.kind, Operation: "seed"}
	}
	return seeder.Seed(ctx, m.TableName, rows)
}

// Close releases the connection. Safe on an already-closed or never-opened
// handle.
func (d *DB) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.conn == nil {
		return nil
	}
	d.closed = true
	if err := d.conn.Close(); err != nil {
		d.logger.Warnw("closing connection", "error", err)
		return err
	}
	d.logger.Infow("storage layer closed", "connection", d.conn.ID())
	return nil
}
