package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bramble-labs/bramble/schemafmt"
	"github.com/bramble-labs/bramble/tree"
)

// Load parses a tree document and returns its definition. YAML input is
// detected by content and converted to JSON first. The document's identity
// fields are checked: an explicit kind must name a behavior tree, and the
// schema_version must be a supported semantic version (filled with the
// current one when absent). Structural validation errors are reported as
// a DiagnosticError carrying the full list.
func Load(data []byte) (*tree.TreeDefinition, error) {
	return load(data, Detect("", data))
}

// LoadFile reads path and loads it, detecting the format from the file
// extension first.
func LoadFile(path string) (*tree.TreeDefinition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	def, err := load(data, Detect(path, data))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return def, nil
}

func load(data []byte, format Format) (*tree.TreeDefinition, error) {
	jsonData := data
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		jsonData = converted
	}

	var def tree.TreeDefinition
	if err := json.Unmarshal(jsonData, &def); err != nil {
		return nil, fmt.Errorf("parsing tree definition: %w", err)
	}

	if err := checkIdentity(&def); err != nil {
		return nil, err
	}

	if diags := def.Validate(); tree.HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return &def, nil
}

// checkIdentity validates the document kind and schema version and writes
// the normalized version back so downstream consumers see a canonical one.
func checkIdentity(def *tree.TreeDefinition) error {
	if raw, ok := def.Extra["kind"]; ok {
		var kind string
		if err := json.Unmarshal(raw, &kind); err != nil {
			return fmt.Errorf("parsing document kind: %w", err)
		}
		if _, _, err := schemafmt.NormalizeKind(kind); err != nil {
			return err
		}
	}

	version, err := schemafmt.NormalizeVersion(def.SchemaVersion)
	if err != nil {
		return err
	}
	def.SchemaVersion = version
	return nil
}

// DiagnosticError aggregates validation diagnostics as a single error.
type DiagnosticError struct {
	Diagnostics []tree.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := tree.Errors(e.Diagnostics)
	if len(errs) == 0 {
		return "validation failed"
	}
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
