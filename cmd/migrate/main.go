package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/db"
	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/migrate"
	trellislog "github.com/trellishq/trellis/internal/log"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	force = flags.Bool("force", false, "drop every managed table before applying")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	command := "migrate"
	if len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := trellislog.NewSugar(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	ctx := context.Background()
	handle, err := db.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage layer: %v", err)
	}
	defer handle.Close(ctx)

	switch command {
	case "migrate":
		if *force {
			runner := mustRunner(handle)
			log.Println("WARNING: -force drops every managed table, ledger included")
			if err := runner.RevertAll(ctx); err != nil {
				log.Fatalf("Reset failed: %v", err)
			}
		}
		applied, err := handle.Migrate(ctx)
		for _, name := range applied {
			log.Printf("applied %s", name)
		}
		if err != nil {
			log.Fatalf("Migration failed after %d applied: %v", len(applied), err)
		}
		log.Printf("done: %d migration(s) applied", len(applied))

	case "status":
		runner := mustRunner(handle)
		st, err := runner.Status(ctx)
		if err != nil {
			log.Fatalf("Status failed: %v", err)
		}
		printStatus(st)

	case "undo":
		if len(args) < 2 {
			log.Fatal("Usage: migrate undo <model>")
		}
		name := args[1]
		model, ok := handle.Registry().Model(name)
		if !ok {
			log.Fatalf("Unknown model %q", name)
		}
		dropper, ok := handle.Conn().(adapter.TableDropper)
		if !ok {
			log.Fatalf("Adapter %s cannot drop tables", handle.Conn().Kind())
		}
		if err := dropper.DropTable(ctx, model.TableName); err != nil {
			log.Fatalf("Undo failed: %v", err)
		}
		log.Printf("dropped %s", model.TableName)

	case "undo-all":
		runner := mustRunner(handle)
		log.Println("WARNING: dropping every managed table, ledger included; down scripts are not consulted")
		if err := runner.RevertAll(ctx); err != nil {
			log.Fatalf("Undo-all failed: %v", err)
		}
		log.Println("all managed tables dropped")

	default:
		log.Fatalf("Unknown command: %s\n\nCommands:\n  migrate [-force]\n  status\n  undo <model>\n  undo-all", command)
	}
}

func mustRunner(handle *db.DB) *migrate.Runner {
	runner, err := handle.Migrator()
	if err != nil {
		log.Fatalf("Migrations unavailable: %v", err)
	}
	return runner
}

func printStatus(st migrate.Status) {
	log.Printf("applied (%d):", len(st.Applied))
	for _, name := range st.Applied {
		log.Printf("  %s", name)
	}
	log.Printf("pending (%d):", len(st.Pending))
	for _, name := range st.Pending {
		log.Printf("  %s", name)
	}
}
