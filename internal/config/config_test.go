package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellishq/trellis/internal/db/capability"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
	assert.Equal(t, capability.Relational, cfg.AdapterKind())
	assert.Equal(t, "postgres", cfg.Database.Dialect)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "trellis_dev", cfg.Database.Name)
	assert.False(t, cfg.Database.EagerSync)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TRL_ENV", "test")
	t.Setenv("TRL_DB_NAME", "app_test")
	t.Setenv("TRL_DB_EAGER_SYNC", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "app_test", cfg.Database.Name)
	assert.True(t, cfg.Database.EagerSync)
}

func TestDialectAliasSelectsRelationalKind(t *testing.T) {
	t.Setenv("TRL_DB_ADAPTER", "sqlite")
	t.Setenv("TRL_DB_NAME", "/tmp/app.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, capability.Relational, cfg.AdapterKind())
	assert.Equal(t, "sqlite", cfg.Database.Dialect)
}

func TestDocumentAlias(t *testing.T) {
	t.Setenv("TRL_DB_ADAPTER", "mongo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, capability.Document, cfg.AdapterKind())
}

func TestLoadRejectsUnknownAdapter(t *testing.T) {
	t.Setenv("TRL_DB_ADAPTER", "graph")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	t.Setenv("TRL_ENV", "staging")
	_, err := Load()
	require.Error(t, err)
}

func TestConnectionConfigMapping(t *testing.T) {
	t.Setenv("TRL_DB_DSN", "postgres://u:p@db:5432/app")
	t.Setenv("TRL_DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	cc := cfg.ConnectionConfig()
	assert.Equal(t, capability.Relational, cc.Kind)
	assert.Equal(t, "postgres://u:p@db:5432/app", cc.DSN)
	assert.Equal(t, "secret", cc.Password)
	assert.Equal(t, cfg.Database.Name, cc.Database)
	require.NoError(t, cc.Validate())
}
