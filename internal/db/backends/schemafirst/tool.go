package schemafirst

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/trellishq/trellis/internal/db/adapter"
	"github.com/trellishq/trellis/internal/db/capability"
)

// Deploy runs the client's external migration tool (`<tool> migrate deploy
// --schema <path>`) and reports subprocess success or failure. The tool
// owns its own ledger; its output is surfaced verbatim in the error, never
// parsed.
func (c *Connection) Deploy(ctx context.Context) error {
	if c.tool == "" {
		return &adapter.UnsupportedOperationError{
			Kind:      capability.SchemaFirst,
			Operation: "migrate",
			Reason:    "no migration tool configured",
		}
	}

	args := []string{"migrate", "deploy"}
	if c.schemaPath != "" {
		args = append(args, "--schema", c.schemaPath)
	}

	cmd := exec.CommandContext(ctx, c.tool, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.logger.Infow("running schema-first migration tool", "tool", c.tool, "schema", c.schemaPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("schema-first migration tool failed: %w\n%s", err, output.String())
	}
	return nil
}
