package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/backends/document"
	"github.com/trellishq/trellis/internal/db/backends/memory"
	"github.com/trellishq/trellis/internal/db/backends/relational"
	"github.com/trellishq/trellis/internal/db/backends/schemafirst"
	"github.com/trellishq/trellis/internal/db/capability"
)

const modelFileSuffix = ".model.json"

// descriptor is the on-disk shape of a *.model.json file.
type descriptor struct {
	Name         string               `json:"name"`
	TableName    string               `json:"tableName,omitempty"`
	Attributes   map[string]Attribute `json:"attributes,omitempty"`
	Associations []Association        `json:"associations,omitempty"`
}

// DirSource scans fsys for *.model.json files and builds one Definition per
// file, with the discovery strategy selected by the adapter kind. A file
// that does not parse still yields a Definition whose Define fails, so the
// loader records it as a failure instead of the scan aborting.
func DirSource(fsys fs.FS, kind capability.Kind) ([]Definition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("models: reading model directory: %w", err)
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), modelFileSuffix) {
			continue
		}
		filename := entry.Name()
		data, err := fs.ReadFile(fsys, filename)
		if err != nil {
			defs = append(defs, brokenDefinition(filename, err))
			continue
		}
		var desc descriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			defs = append(defs, brokenDefinition(filename, fmt.Errorf("parsing %s: %w", filename, err)))
			continue
		}
		if desc.Name == "" {
			defs = append(defs, brokenDefinition(filename, fmt.Errorf("%s: missing model name", filename)))
			continue
		}
		if desc.TableName == "" {
			desc.TableName = strings.ToLower(desc.Name)
		}
		defs = append(defs, Definition{
			Name:      desc.Name,
			Define:    defineFor(kind, desc),
			Associate: associateFor(desc),
		})
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// brokenDefinition carries a scan-time failure into the load pass, using the
// filename minus suffix as the model name.
func brokenDefinition(filename string, err error) Definition {
	name := strings.TrimSuffix(filename, modelFileSuffix)
	return Definition{
		Name: name,
		Define: func(ctx context.Context, conn adapter.Connection) (*Model, error) {
			return nil, err
		},
	}
}

// defineFor returns the instantiation strategy for the adapter kind.
func defineFor(kind capability.Kind, desc descriptor) func(context.Context, adapter.Connection) (*Model, error) {
	return func(ctx context.Context, conn adapter.Connection) (*Model, error) {
		model := &Model{
			Name:         desc.Name,
			TableName:    desc.TableName,
			Attributes:   desc.Attributes,
			Associations: desc.Associations,
			related:      make(map[string]*Model),
		}

		switch kind {
		case capability.Relational:
			if _, ok := conn.(*relational.Connection); !ok {
				return nil, fmt.Errorf("relational model on %s connection", conn.Kind())
			}
			if len(desc.Attributes) == 0 {
				return nil, fmt.Errorf("model %q declares no attributes", desc.Name)
			}
		case capability.Document:
			// Collections need no attribute schema; the descriptor is a
			// collection binding.
			if _, ok := conn.(*document.Connection); !ok {
				return nil, fmt.Errorf("document model on %s connection", conn.Kind())
			}
		case capability.SchemaFirst:
			sc, ok := conn.(*schemafirst.Connection)
			if !ok {
				return nil, fmt.Errorf("schema-first model on %s connection", conn.Kind())
			}
			if !clientExposes(sc.Client(), desc.TableName) {
				return nil, fmt.Errorf("generated client does not expose collection %q", desc.TableName)
			}
		case capability.Memory:
			mc, ok := conn.(*memory.Connection)
			if !ok {
				return nil, fmt.Errorf("memory model on %s connection", conn.Kind())
			}
			mc.EnsureTable(desc.TableName)
		default:
			return nil, fmt.Errorf("no model discovery strategy for kind %q", kind)
		}
		return model, nil
	}
}

func clientExposes(client schemafirst.Client, collection string) bool {
	for _, name := range client.Collections() {
		if name == collection {
			return true
		}
	}
	return false
}

// associateFor resolves declared association targets against the complete
// registry. Every target must name a successfully loaded model.
func associateFor(desc descriptor) func(context.Context, *Registry) error {
	if len(desc.Associations) == 0 {
		return nil
	}
	return func(ctx context.Context, reg *Registry) error {
		model, ok := reg.Model(desc.Name)
		if !ok {
			return fmt.Errorf("model %q not present in registry", desc.Name)
		}
		for _, assoc := range desc.Associations {
			target, ok := reg.Model(assoc.Target)
			if !ok {
				return fmt.Errorf("association target %q is not a loaded model", assoc.Target)
			}
			model.related[assoc.Target] = target
		}
		return nil
	}
}
