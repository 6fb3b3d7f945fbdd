package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadSourceSortsByName(t *testing.T) {
	fsys := fstest.MapFS{
		"003_comments.up.sql":   sqlFile("CREATE TABLE comments (id TEXT)"),
		"001_users.up.sql":      sqlFile("CREATE TABLE users (id TEXT)"),
		"001_users.down.sql":    sqlFile("DROP TABLE users"),
		"002_posts.up.sql":      sqlFile("CREATE TABLE posts (id TEXT)"),
		"002_posts.down.sql":    sqlFile("DROP TABLE posts"),
		"README.md":             sqlFile("not a migration"),
		"003_comments.down.sql": sqlFile("DROP TABLE comments"),
	}

	source, err := LoadSource(fsys)
	require.NoError(t, err)
	require.Equal(t, 3, source.Len())

	all := source.All()
	assert.Equal(t, "001_users", all[0].Name)
	assert.Equal(t, "002_posts", all[1].Name)
	assert.Equal(t, "003_comments", all[2].Name)
	assert.Equal(t, "001", all[0].ID)
	assert.True(t, all[0].HasDown)
	assert.Equal(t, "DROP TABLE users", all[0].DownSQL)
}

func TestLoadSourceOrdersVariableWidthPrefixesNumerically(t *testing.T) {
	fsys := fstest.MapFS{
		"10_teams.up.sql":                 sqlFile("CREATE TABLE teams (id TEXT)"),
		"2_users.up.sql":                  sqlFile("CREATE TABLE users (id TEXT)"),
		"002_posts.up.sql":                sqlFile("CREATE TABLE posts (id TEXT)"),
		"20240101120000_billing.up.sql":   sqlFile("CREATE TABLE invoices (id TEXT)"),
		"20230615093000_audit_log.up.sql": sqlFile("CREATE TABLE audit_log (id TEXT)"),
	}

	source, err := LoadSource(fsys)
	require.NoError(t, err)

	names := make([]string, 0, source.Len())
	for _, m := range source.All() {
		names = append(names, m.Name)
	}
	// 2 == 002 numerically; the name breaks the tie. 10 sorts after both.
	assert.Equal(t, []string{
		"002_posts",
		"2_users",
		"10_teams",
		"20230615093000_audit_log",
		"20240101120000_billing",
	}, names)
}

func TestLoadSourceMissingDownIsAllowed(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.up.sql": sqlFile("CREATE TABLE users (id TEXT)"),
	}
	source, err := LoadSource(fsys)
	require.NoError(t, err)
	m, ok := source.Get("001_users")
	require.True(t, ok)
	assert.False(t, m.HasDown)
}

func TestLoadSourceRejectsOrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.down.sql": sqlFile("DROP TABLE users"),
	}
	_, err := LoadSource(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching up file")
}

func TestLoadSourceRejectsUnparseableSQLName(t *testing.T) {
	fsys := fstest.MapFS{
		"users.sql": sqlFile("CREATE TABLE users (id TEXT)"),
	}
	_, err := LoadSource(fsys)
	require.Error(t, err)
}

func TestSourceGet(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.up.sql": sqlFile("CREATE TABLE users (id TEXT)"),
	}
	source, err := LoadSource(fsys)
	require.NoError(t, err)

	_, ok := source.Get("001_users")
	assert.True(t, ok)
	_, ok = source.Get("999_ghosts")
	assert.False(t, ok)
}
