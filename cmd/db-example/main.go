package main

import (
	"context"
	"fmt"
	"log"
	"testing/fstest"

	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/db"
	trellislog "github.com/trellishq/trellis/internal/log"
)

// Demonstrates the lifecycle facade against the in-memory backend: open,
// model lookup, seeding, health, shutdown.
func main() {
	ctx := context.Background()

	cfg := &config.Config{Env: "dev"}
	cfg.Database.Adapter = "memory"

	logger, err := trellislog.NewSugar(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	modelsFS := fstest.MapFS{
		"user.model.json": &fstest.MapFile{Data: []byte(`{
			"name": "user",
			"attributes": {
				"id":    {"type": "string", "primaryKey": true},
				"email": {"type": "string", "unique": true},
				"name":  {"type": "string"}
			},
			"associations": [{"kind": "hasMany", "target": "post"}]
		}`)},
		"post.model.json": &fstest.MapFile{Data: []byte(`{
			"name": "post",
			"attributes": {
				"id":    {"type": "string", "primaryKey": true},
				"title": {"type": "string"},
				"body":  {"type": "text"}
			},
			"associations": [{"kind": "belongsTo", "target": "user"}]
		}`)},
	}

	handle, err := db.Open(ctx, cfg, logger, db.WithModelsFS(modelsFS))
	if err != nil {
		log.Fatalf("Failed to open storage layer: %v", err)
	}
	defer handle.Close(ctx)

	fmt.Println("=== Storage Layer Demo ===")

	for _, model := range handle.Registry().Models() {
		fmt.Printf("model %s -> table %s (%d attributes)\n",
			model.Name, model.TableName, len(model.Attributes))
	}

	user, _ := handle.Registry().Model("user")
	if posts, ok := user.Related("post"); ok {
		fmt.Printf("user is associated with %s\n", posts.Name)
	}

	rows := []map[string]any{
		{"id": "u1", "email": "ada@example.com", "name": "Ada"},
		{"id": "u2", "email": "lin@example.com", "name": "Lin"},
	}
	if err := handle.Seed(ctx, "user", rows); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
	fmt.Printf("seeded %d users\n", len(rows))

	health := handle.Health(ctx)
	fmt.Printf("health: %s (%s adapter)\n", health.Status, health.Adapter)

	if err := handle.Close(ctx); err != nil {
		log.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent; a second call is a no-op.
	_ = handle.Close(ctx)
	fmt.Println("closed cleanly")
}
