// Package loader reads serialized tree documents in JSON or YAML and
// produces validated tree definitions. YAML input is converted to JSON
// first so a single unmarshal path exists.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a tree document's serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Detect determines a document's format from its file extension, falling
// back to content sniffing when the extension is missing or unknown. JSON
// is a YAML subset, so ambiguous content defaults to YAML safely.
func Detect(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// yamlToJSON re-encodes a YAML document as JSON bytes: YAML ->
// map[string]any -> JSON. yaml.v3 decodes string-keyed mappings into
// JSON-compatible maps.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}
