package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bramble-labs/bramble/loader"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/tree"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate behavior tree files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

// fileReport pairs a validated file with its diagnostics for JSON output.
type fileReport struct {
	File        string            `json:"file"`
	Valid       bool              `json:"valid"`
	Diagnostics []tree.Diagnostic `json:"diagnostics"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	reports := make([]fileReport, 0, len(args))
	failed := false

	for _, path := range args {
		diags, err := validateFile(path)
		if err != nil {
			return err
		}

		hasErrs := tree.HasErrors(diags)
		if hasErrs || (strict && len(tree.Warnings(diags)) > 0) {
			failed = true
		}
		reports = append(reports, fileReport{
			File:        path,
			Valid:       !hasErrs,
			Diagnostics: diags,
		})
	}

	if format == "json" {
		printReportsJSON(out, reports)
	} else {
		printReportsText(out, reports)
	}

	if failed {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

// validateFile loads one definition and returns every diagnostic: parse
// failures surface as a synthetic BT-000 error, structural problems come
// from the loader, and registry checks catch unknown types, bad configs,
// and child arity.
func validateFile(path string) ([]tree.Diagnostic, error) {
	def, err := loader.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			return diagErr.Diagnostics, nil
		}
		return []tree.Diagnostic{{
			Code:     "BT-000",
			Severity: tree.SeverityError,
			Message:  fmt.Sprintf("failed to parse file: %v", err),
		}}, nil
	}
	return def.ValidateWithRegistry(registry.Builtins()), nil
}

func printReportsText(w io.Writer, reports []fileReport) {
	for i, rep := range reports {
		if len(reports) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s:\n", rep.File)
		}
		printDiagnosticsText(w, rep.Diagnostics)
	}
}

// printDiagnosticsText writes diagnostics as formatted text lines followed
// by a summary. Used by both the validate and run commands.
func printDiagnosticsText(w io.Writer, diags []tree.Diagnostic) {
	for _, d := range diags {
		sev := strings.ToUpper(d.Severity)
		if d.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	errs := tree.Errors(diags)
	warns := tree.Warnings(diags)

	switch {
	case len(errs) == 0 && len(warns) == 0:
		fmt.Fprintln(w, "Valid!")
	case len(errs) == 0 && len(warns) > 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", len(warns), pluralize("warning", len(warns)))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			len(errs), pluralize("error", len(errs)),
			len(warns), pluralize("warning", len(warns)))
	}
}

func printReportsJSON(w io.Writer, reports []fileReport) {
	// Output empty arrays rather than null when there are no diagnostics.
	for i := range reports {
		if reports[i].Diagnostics == nil {
			reports[i].Diagnostics = []tree.Diagnostic{}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(reports)
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
