package models

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/memory"
	"github.com/trellishq/trellis/internal/db/capability"
)

func modelFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

var validModels = fstest.MapFS{
	"user.model.json": modelFile(`{
		"name": "user",
		"attributes": {"id": {"type": "string", "primaryKey": true}},
		"associations": [{"kind": "hasMany", "target": "post"}]
	}`),
	"post.model.json": modelFile(`{
		"name": "post",
		"attributes": {"id": {"type": "string", "primaryKey": true}},
		"associations": [
			{"kind": "belongsTo", "target": "user"},
			{"kind": "hasMany", "target": "comment"}
		]
	}`),
	"comment.model.json": modelFile(`{
		"name": "comment",
		"attributes": {"id": {"type": "string", "primaryKey": true}}
	}`),
}

func loadOn(t *testing.T, fsys fstest.MapFS) (*Registry, *memory.Connection) {
	t.Helper()
	conn := memory.NewConnection()
	defs, err := DirSource(fsys, capability.Memory)
	require.NoError(t, err)
	reg, err := Load(context.Background(), conn, defs, zap.NewNop().Sugar())
	require.NoError(t, err)
	return reg, conn
}

func TestLoadAllModels(t *testing.T) {
	reg, conn := loadOn(t, validModels)

	require.Len(t, reg.Models(), 3)
	assert.False(t, reg.Degraded())
	assert.Empty(t, reg.Failures())

	// Sorted lookup order.
	names := make([]string, 0, 3)
	for _, m := range reg.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"comment", "post", "user"}, names)

	// Model instantiation created the backing tables.
	tables, err := conn.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"comment", "post", "user"}, tables)
}

func TestAssociationsSeeCompleteMap(t *testing.T) {
	// "user" sorts last in the scan but still resolves "post": every
	// callback runs against the complete pass-1 map.
	reg, _ := loadOn(t, validModels)

	user, ok := reg.Model("user")
	require.True(t, ok)
	post, ok := user.Related("post")
	require.True(t, ok)
	assert.Equal(t, "post", post.Name)

	// post wires both directions, including the later-defined comment.
	postModel, _ := reg.Model("post")
	_, ok = postModel.Related("user")
	assert.True(t, ok)
	_, ok = postModel.Related("comment")
	assert.True(t, ok)
}

func TestOneMalformedModelDoesNotAbortLoad(t *testing.T) {
	fsys := fstest.MapFS{}
	for name, file := range validModels {
		fsys[name] = file
	}
	fsys["broken.model.json"] = modelFile(`{"name": "broken", "attributes"`)

	reg, _ := loadOn(t, fsys)

	assert.Len(t, reg.Models(), 3)
	assert.True(t, reg.Degraded())
	require.Len(t, reg.Failures(), 1)

	failure := reg.Failures()[0]
	assert.Equal(t, "broken", failure.Name)
	assert.Equal(t, StageDefine, failure.Stage)
	_, ok := reg.Model("broken")
	assert.False(t, ok)
}

func TestMissingNameIsRecordedFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"anon.model.json": modelFile(`{"attributes": {"id": {"type": "string"}}}`),
	}
	reg, _ := loadOn(t, fsys)
	assert.Empty(t, reg.Models())
	require.Len(t, reg.Failures(), 1)
	assert.Equal(t, "anon", reg.Failures()[0].Name)
}

func TestDuplicateModelNameRejected(t *testing.T) {
	conn := memory.NewConnection()
	define := func(ctx context.Context, c adapter.Connection) (*Model, error) {
		return &Model{Name: "user", TableName: "user"}, nil
	}
	defs := []Definition{
		{Name: "user", Define: define},
		{Name: "user", Define: define},
	}
	reg, err := Load(context.Background(), conn, defs, zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.Len(t, reg.Models(), 1)
	require.Len(t, reg.Failures(), 1)

	var loadErr *ModelLoadError
	require.True(t, errors.As(reg.Failures()[0].Err, &loadErr))
	assert.Equal(t, "user", loadErr.Name)
}

func TestAssociationTargetMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"orphan.model.json": modelFile(`{
			"name": "orphan",
			"attributes": {"id": {"type": "string"}},
			"associations": [{"kind": "belongsTo", "target": "ghost"}]
		}`),
	}
	reg, _ := loadOn(t, fsys)

	_, ok := reg.Model("orphan")
	assert.False(t, ok)
	require.Len(t, reg.Failures(), 1)
	assert.Equal(t, StageAssociate, reg.Failures()[0].Stage)

	var wireErr *AssociationWiringError
	assert.True(t, errors.As(reg.Failures()[0].Err, &wireErr))
}

func TestWiringFailureDoesNotAbortOthers(t *testing.T) {
	fsys := fstest.MapFS{}
	for name, file := range validModels {
		fsys[name] = file
	}
	fsys["orphan.model.json"] = modelFile(`{
		"name": "orphan",
		"attributes": {"id": {"type": "string"}},
		"associations": [{"kind": "belongsTo", "target": "ghost"}]
	}`)

	reg, _ := loadOn(t, fsys)
	assert.Len(t, reg.Models(), 3)
	assert.True(t, reg.Degraded())
}

func TestWiringFailureStaysVisibleToLaterCallbacks(t *testing.T) {
	// "a" fails its own wiring, but "b" wires against "a" afterwards and
	// must still see it: pass 2 runs every callback against the intact
	// pass-1 map, and only then drops the failed models.
	conn := memory.NewConnection()
	define := func(name string) func(context.Context, adapter.Connection) (*Model, error) {
		return func(ctx context.Context, c adapter.Connection) (*Model, error) {
			return &Model{Name: name, TableName: name, related: make(map[string]*Model)}, nil
		}
	}
	defs := []Definition{
		{
			Name:   "a",
			Define: define("a"),
			Associate: func(ctx context.Context, reg *Registry) error {
				return errors.New("bad wiring")
			},
		},
		{
			Name:   "b",
			Define: define("b"),
			Associate: func(ctx context.Context, reg *Registry) error {
				target, ok := reg.Model("a")
				if !ok {
					return errors.New("a not visible during wiring")
				}
				m, _ := reg.Model("b")
				m.related["a"] = target
				return nil
			},
		},
	}

	reg, err := Load(context.Background(), conn, defs, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, ok := reg.Model("b")
	assert.True(t, ok, "b must survive a's wiring failure")
	_, ok = reg.Model("a")
	assert.False(t, ok)

	require.Len(t, reg.Failures(), 1)
	assert.Equal(t, "a", reg.Failures()[0].Name)
	assert.Equal(t, StageAssociate, reg.Failures()[0].Stage)
}

func TestLoadRequiresConnection(t *testing.T) {
	_, err := Load(context.Background(), nil, nil, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestDirSourceKindMismatch(t *testing.T) {
	// Relational definitions cannot instantiate on a memory connection; the
	// failure is recorded per model, not raised by the scan.
	defs, err := DirSource(validModels, capability.Relational)
	require.NoError(t, err)

	conn := memory.NewConnection()
	reg, err := Load(context.Background(), conn, defs, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Empty(t, reg.Models())
	assert.Len(t, reg.Failures(), 3)
}
