package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/loader"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/tree"
)

// Process exit codes.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitTimeout      = 10
)

// untilTerminalCap bounds --until-terminal when --ticks is not given, so a
// tree that never leaves RUNNING cannot spin forever.
const untilTerminalCap = 1000

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Tick a behavior tree file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().Int("ticks", 1, "Number of whole-tree evaluations to run")
	cmd.Flags().StringArray("set", nil, "Seed a blackboard key before the first tick (key=value, repeatable)")
	cmd.Flags().Bool("capture", false, "Record a snapshot into history after every tick")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("until-terminal", false, "Keep ticking until the root reports SUCCESS or FAILURE")
	cmd.Flags().Duration("timeout", time.Minute, "Execution timeout")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	def, err := loadTree(cmd, args[0])
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	updates, err := parseSetFlags(cmd)
	if err != nil {
		return err
	}

	capture, _ := cmd.Flags().GetBool("capture")
	svc := exec.NewService(registry.Builtins(),
		exec.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	in, err := svc.Create(def, exec.CreateOptions{Capture: capture})
	if err != nil {
		return exitError(exitRuntime, "building tree: %v", err)
	}

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()

	ticks, _ := cmd.Flags().GetInt("ticks")
	if ticks < 1 {
		ticks = 1
	}
	untilTerminal, _ := cmd.Flags().GetBool("until-terminal")
	if untilTerminal && !cmd.Flags().Changed("ticks") {
		ticks = untilTerminalCap
	}

	out := cmd.OutOrStdout()
	for i := 0; i < ticks; i++ {
		res, err := in.Tick(ctx, exec.TickRequest{Count: 1, Updates: updates, Capture: capture})
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return exitError(exitTimeout, "run timed out after %s", timeout)
			}
			return exitError(exitRuntime, "tick %d: %v", i+1, err)
		}
		updates = nil

		if format == "text" {
			fmt.Fprintf(out, "tick %d: %s\n", res.TickCount, res.RootStatus)
		}
		if untilTerminal && res.RootStatus != core.StatusRunning {
			break
		}
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(in.Snapshot()); err != nil {
			return exitError(exitRuntime, "encoding snapshot: %v", err)
		}
	}
	return nil
}

// loadTree reads and validates a definition file, printing diagnostics to
// stderr when validation fails.
func loadTree(cmd *cobra.Command, path string) (*tree.TreeDefinition, error) {
	def, err := loader.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
			return nil, exitError(exitValidation, "validation failed")
		}
		return nil, exitError(exitValidation, "%v", err)
	}

	if diags := def.ValidateWithRegistry(registry.Builtins()); tree.HasErrors(diags) {
		printDiagnosticsText(cmd.ErrOrStderr(), diags)
		return nil, exitError(exitValidation, "validation failed")
	}
	return def, nil
}

// parseSetFlags turns --set key=value pairs into blackboard updates. Values
// parse as JSON when they can, so --set battery=42 seeds a number and
// --set zone=hall a string.
func parseSetFlags(cmd *cobra.Command) (map[string]any, error) {
	pairs, _ := cmd.Flags().GetStringArray("set")
	if len(pairs) == 0 {
		return nil, nil
	}

	updates := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, exitError(exitInputParse, "invalid --set %q (expected key=value)", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
			v = parts[1]
		}
		updates[parts[0]] = v
	}
	return updates, nil
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, timeout
}
