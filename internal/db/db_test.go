package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/relational"
)

func memConfig() *config.Config {
	cfg := &config.Config{Env: "test"}
	cfg.Database.Adapter = "memory"
	return cfg
}

func sqliteConfig() *config.Config {
	cfg := &config.Config{Env: "test"}
	cfg.Database.Adapter = "relational"
	cfg.Database.Dialect = "sqlite"
	cfg.Database.Name = "test.db"
	return cfg
}

var testModels = fstest.MapFS{
	"user.model.json": &fstest.MapFile{Data: []byte(`{
		"name": "user",
		"attributes": {"id": {"type": "string", "primaryKey": true}}
	}`)},
	"post.model.json": &fstest.MapFile{Data: []byte(`{
		"name": "post",
		"attributes": {"id": {"type": "string", "primaryKey": true}},
		"associations": [{"kind": "belongsTo", "target": "user"}]
	}`)},
}

// mockRegistry wires the relational adapter to a sqlmock handle.
func mockRegistry(t *testing.T) (*adapter.Registry, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	reg := adapter.NewRegistry()
	reg.Register(relational.NewAdapter(zap.NewNop().Sugar(),
		relational.WithOpener(func(driverName, dsn string) (*sql.DB, error) { return sqldb, nil })))
	return reg, mock
}

func TestOpenMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	handle, err := Open(ctx, memConfig(), zap.NewNop().Sugar(), WithModelsFS(testModels))
	require.NoError(t, err)

	require.Len(t, handle.Registry().Models(), 2)
	user, ok := handle.Registry().Model("user")
	require.True(t, ok)
	assert.Equal(t, "user", user.TableName)

	health := handle.Health(ctx)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, "memory", health.Adapter)

	require.NoError(t, handle.Seed(ctx, "user", []map[string]any{{"id": "u1"}}))

	require.NoError(t, handle.Close(ctx))
	require.NoError(t, handle.Close(ctx))
	assert.Equal(t, StatusUnhealthy, handle.Health(ctx).Status)

	var nilHandle *DB
	require.NoError(t, nilHandle.Close(ctx))
}

func TestHealthDegradedOnLoadFailure(t *testing.T) {
	fsys := fstest.MapFS{}
	for name, file := range testModels {
		fsys[name] = file
	}
	fsys["broken.model.json"] = &fstest.MapFile{Data: []byte(`{"name":`)}

	ctx := context.Background()
	handle, err := Open(ctx, memConfig(), zap.NewNop().Sugar(), WithModelsFS(fsys))
	require.NoError(t, err)
	defer handle.Close(ctx)

	assert.Len(t, handle.Registry().Models(), 2)
	assert.True(t, handle.Registry().Degraded())
	assert.Equal(t, StatusDegraded, handle.Health(ctx).Status)
}

func TestSeedUnknownModel(t *testing.T) {
	ctx := context.Background()
	handle, err := Open(ctx, memConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer handle.Close(ctx)

	err = handle.Seed(ctx, "ghost", nil)
	require.Error(t, err)
}

func TestMigratorUnsupportedOnMemory(t *testing.T) {
	ctx := context.Background()
	handle, err := Open(ctx, memConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer handle.Close(ctx)

	_, err = handle.Migrator()
	assert.ErrorIs(t, err, adapter.ErrOperationNotSupported)
}

func TestEagerSyncRefusedInProd(t *testing.T) {
	cfg := memConfig()
	cfg.Env = "prod"
	cfg.Database.EagerSync = true

	_, err := Open(context.Background(), cfg, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod")
}

func TestEagerSyncConflictsWithMigrations(t *testing.T) {
	reg, mock := mockRegistry(t)
	mock.ExpectClose()

	cfg := sqliteConfig()
	cfg.Database.EagerSync = true
	migrations := fstest.MapFS{
		"001_users.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE users (id TEXT)")},
	}

	_, err := Open(context.Background(), cfg, zap.NewNop().Sugar(),
		WithAdapters(reg), WithMigrationsFS(migrations))
	assert.ErrorIs(t, err, adapter.ErrConflictingSchemaModes)
}

func TestEagerSyncCreatesTables(t *testing.T) {
	reg, mock := mockRegistry(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "widget" ("id" TEXT PRIMARY KEY)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cfg := sqliteConfig()
	cfg.Database.EagerSync = true
	models := fstest.MapFS{
		"widget.model.json": &fstest.MapFile{Data: []byte(`{
			"name": "widget",
			"attributes": {"id": {"type": "string", "primaryKey": true}}
		}`)},
	}

	ctx := context.Background()
	handle, err := Open(ctx, cfg, zap.NewNop().Sugar(),
		WithAdapters(reg), WithModelsFS(models))
	require.NoError(t, err)
	defer handle.Close(ctx)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorOnRelational(t *testing.T) {
	reg, mock := mockRegistry(t)
	_ = mock

	migrations := fstest.MapFS{
		"001_users.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE users (id TEXT)")},
	}
	ctx := context.Background()
	handle, err := Open(ctx, sqliteConfig(), zap.NewNop().Sugar(),
		WithAdapters(reg), WithMigrationsFS(migrations))
	require.NoError(t, err)
	defer handle.Close(ctx)

	runner, err := handle.Migrator()
	require.NoError(t, err)
	require.NotNil(t, runner)
}

func TestMigrateDispatchesToRunner(t *testing.T) {
	reg, mock := mockRegistry(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`)).
		WithArgs("trellis_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM "trellis_migrations" ORDER BY name`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE users (id TEXT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trellis_migrations" (name) VALUES (?)`)).
		WithArgs("001_users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	migrations := fstest.MapFS{
		"001_users.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE users (id TEXT)")},
	}
	ctx := context.Background()
	handle, err := Open(ctx, sqliteConfig(), zap.NewNop().Sugar(),
		WithAdapters(reg), WithMigrationsFS(migrations))
	require.NoError(t, err)
	defer handle.Close(ctx)

	applied, err := handle.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_users"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

// stubClient satisfies the schema-first client contract for facade tests.
type stubClient struct{}

func (stubClient) Connect(ctx context.Context) error { return nil }
func (stubClient) Ping(ctx context.Context) error    { return nil }
func (stubClient) Close(ctx context.Context) error   { return nil }
func (stubClient) Collections() []string             { return nil }

func TestMigrateDispatchesToSchemaFirstTool(t *testing.T) {
	cfg := &config.Config{Env: "test"}
	cfg.Database.Adapter = "schemafirst"

	ctx := context.Background()
	handle, err := Open(ctx, cfg, zap.NewNop().Sugar(), WithClient(stubClient{}))
	require.NoError(t, err)
	defer handle.Close(ctx)

	// Dispatch reaches the client's tool invocation; with no tool
	// configured it reports the unsupported-operation class rather than
	// the relational runner's errors.
	_, err = handle.Migrate(ctx)
	assert.ErrorIs(t, err, adapter.ErrOperationNotSupported)
}

func TestMigrateUnsupportedOnMemory(t *testing.T) {
	ctx := context.Background()
	handle, err := Open(ctx, memConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer handle.Close(ctx)

	_, err = handle.Migrate(ctx)
	assert.ErrorIs(t, err, adapter.ErrOperationNotSupported)
}

func TestOpenUnregisteredKind(t *testing.T) {
	cfg := memConfig()
	_, err := Open(context.Background(), cfg, zap.NewNop().Sugar(),
		WithAdapters(adapter.NewRegistry()))
	var unsupported *adapter.UnsupportedAdapterError
	require.True(t, errors.As(err, &unsupported))
}
