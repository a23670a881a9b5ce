package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bramble-labs/bramble/hydrate"
	"github.com/bramble-labs/bramble/registry"
)

// NewExportCmd creates the "export" subcommand.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Round-trip a tree through the builder and print the canonical form",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	cmd.Flags().String("format", "json", "Output format: json | yaml")
	cmd.Flags().StringP("output", "o", "", "Write output to file (default: stdout)")

	return cmd
}

// runExport implements the export pipeline:
//
//	read file → load → validate → build runtime tree → extract definition
//	→ serialize → write output
//
// The result is the canonical form of the definition: config defaults
// filled in and every node's effective configuration made explicit.
func runExport(cmd *cobra.Command, args []string) error {
	def, err := loadTree(cmd, args[0])
	if err != nil {
		return err
	}

	reg := registry.Builtins()
	res, err := hydrate.Build(def, reg)
	if err != nil {
		return exitError(exitValidation, "building tree: %v", err)
	}
	canonical, err := hydrate.ExtractTree(res, reg)
	if err != nil {
		return exitError(exitRuntime, "extracting tree: %v", err)
	}

	data, err := json.MarshalIndent(canonical, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "serializing tree: %v", err)
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		data = append(data, '\n')
	case "yaml":
		data, err = jsonToYAML(data)
		if err != nil {
			return exitError(exitRuntime, "converting to YAML: %v", err)
		}
	default:
		return exitError(exitInputParse, "unknown format %q (use json or yaml)", format)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

// jsonToYAML re-renders marshaled JSON as YAML so both output formats share
// the definition's JSON field names.
func jsonToYAML(data []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
