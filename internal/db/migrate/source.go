// Package migrate owns the migration ledger and runner for relational
// backends. Migrations are SQL file pairs named <id>_<label>.up.sql and
// <id>_<label>.down.sql; the numeric prefix is the ordering key, and the
// ledger table is the only authority on what has been applied.
package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

// migrationFile matches <id>_<label>.up.sql / .down.sql.
var migrationFile = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_-]+)\.(up|down)\.sql$`)

// Migration is one named, ordered unit with forward and reverse SQL. The
// reverse side is optional until a rollback actually needs it.
type Migration struct {
	Name    string // e.g. 001_users
	ID      string // embedded ordering prefix
	UpSQL   string
	DownSQL string
	HasDown bool
}

// Source is the sorted universe of discovered migrations, scanned from a
// directory exactly once.
type Source struct {
	migrations []Migration
}

// LoadSource scans fsys for migration pairs and sorts them by the numeric
// value of the ordering prefix (name as tiebreaker). Every up file must
// parse to a unique name; a down file without its up pair is an error.
func LoadSource(fsys fs.FS) (*Source, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: reading migrations directory: %w", err)
	}

	byName := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFile.FindStringSubmatch(entry.Name())
		if parts == nil {
			if strings.HasSuffix(entry.Name(), ".sql") {
				return nil, fmt.Errorf("migrate: %s does not match <id>_<label>.up.sql", entry.Name())
			}
			continue
		}
		name := parts[1] + "_" + parts[2]
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migrate: reading %s: %w", entry.Name(), err)
		}
		switch parts[3] {
		case "up":
			if _, dup := byName[name]; dup {
				return nil, fmt.Errorf("migrate: duplicate migration name %q", name)
			}
			byName[name] = &Migration{Name: name, ID: parts[1], UpSQL: string(data)}
		case "down":
			downs[name] = string(data)
		}
	}

	for name, sql := range downs {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("migrate: down file for %q has no matching up file", name)
		}
		m.DownSQL = sql
		m.HasDown = true
	}

	migrations := make([]Migration, 0, len(byName))
	for _, m := range byName {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		if c := compareID(migrations[i].ID, migrations[j].ID); c != 0 {
			return c < 0
		}
		return migrations[i].Name < migrations[j].Name
	})
	return &Source{migrations: migrations}, nil
}

// compareID orders two numeric prefixes by value, so a variable-width prefix
// like 10 sorts after 2. Comparing the zero-trimmed digits by length first
// avoids parsing limits on long timestamp prefixes.
func compareID(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

// All returns the sorted universe.
func (s *Source) All() []Migration {
	out := make([]Migration, len(s.migrations))
	copy(out, s.migrations)
	return out
}

// Get looks a migration up by name.
func (s *Source) Get(name string) (Migration, bool) {
	for _, m := range s.migrations {
		if m.Name == name {
			return m, true
		}
	}
	return Migration{}, false
}

// Len returns the number of discovered migrations.
func (s *Source) Len() int { return len(s.migrations) }
