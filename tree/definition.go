// Package tree defines the serializable behavior-tree definition format
// and its validation rules.
//
// A TreeDefinition is the intermediate representation every surface shares:
// the loader produces it from JSON or YAML, the catalog stores it, the
// builder materializes it into a runtime tree, and the extractor produces
// one back from a runtime tree.
package tree

import (
	"encoding/json"
	"fmt"

	"github.com/bramble-labs/bramble/blackboard"
)

// Diagnostic represents a validation error or warning produced by
// definition validation.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "BT-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// NodeDefinition is a serializable node within a TreeDefinition. Unknown
// JSON fields survive load/save cycles through Extra so definitions written
// by newer producers keep their data.
type NodeDefinition struct {
	Type     string                     `json:"node_type"`
	ID       string                     `json:"id,omitempty"`
	Name     string                     `json:"name,omitempty"`
	Config   map[string]any             `json:"config,omitempty"`
	Children []NodeDefinition           `json:"children,omitempty"`
	Extra    map[string]json.RawMessage `json:"-"`
}

// nodeDefinitionAlias carries the known fields without the custom
// marshaling methods.
type nodeDefinitionAlias struct {
	Type     string           `json:"node_type"`
	ID       string           `json:"id,omitempty"`
	Name     string           `json:"name,omitempty"`
	Config   map[string]any   `json:"config,omitempty"`
	Children []NodeDefinition `json:"children,omitempty"`
}

var nodeDefinitionKnownFields = []string{"node_type", "id", "name", "config", "children"}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra.
func (nd *NodeDefinition) UnmarshalJSON(data []byte) error {
	var known nodeDefinitionAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	nd.Type = known.Type
	nd.ID = known.ID
	nd.Name = known.Name
	nd.Config = known.Config
	nd.Children = known.Children
	nd.Extra = nil

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range nodeDefinitionKnownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		nd.Extra = raw
	}
	return nil
}

// MarshalJSON emits the known fields plus any preserved unknown fields.
func (nd NodeDefinition) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(nodeDefinitionAlias{
		Type:     nd.Type,
		ID:       nd.ID,
		Name:     nd.Name,
		Config:   nd.Config,
		Children: nd.Children,
	})
	if err != nil {
		return nil, err
	}
	if len(nd.Extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range nd.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of the node definition.
func (nd NodeDefinition) Clone() NodeDefinition {
	out := nd
	out.Config = cloneConfig(nd.Config)
	if nd.Children != nil {
		out.Children = make([]NodeDefinition, len(nd.Children))
		for i, child := range nd.Children {
			out.Children[i] = child.Clone()
		}
	}
	if nd.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(nd.Extra))
		for k, v := range nd.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Metadata carries the human-facing description of a tree.
type Metadata struct {
	Name        string   `json:"name,omitempty"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// TreeDefinition is the serializable representation of a whole behavior
// tree: identity, metadata, the blackboard schema, and the root node.
type TreeDefinition struct {
	SchemaVersion    string                        `json:"schema_version,omitempty"`
	ID               string                        `json:"tree_id,omitempty"`
	Metadata         Metadata                      `json:"metadata,omitempty"`
	BlackboardSchema map[string]blackboard.KeySpec `json:"blackboard_schema,omitempty"`
	Root             NodeDefinition                `json:"root"`
	Extra            map[string]json.RawMessage    `json:"-"`
}

type treeDefinitionAlias struct {
	SchemaVersion    string                        `json:"schema_version,omitempty"`
	ID               string                        `json:"tree_id,omitempty"`
	Metadata         Metadata                      `json:"metadata,omitempty"`
	BlackboardSchema map[string]blackboard.KeySpec `json:"blackboard_schema,omitempty"`
	Root             NodeDefinition                `json:"root"`
}

var treeDefinitionKnownFields = []string{"schema_version", "tree_id", "metadata", "blackboard_schema", "root"}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra.
func (td *TreeDefinition) UnmarshalJSON(data []byte) error {
	var known treeDefinitionAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	td.SchemaVersion = known.SchemaVersion
	td.ID = known.ID
	td.Metadata = known.Metadata
	td.BlackboardSchema = known.BlackboardSchema
	td.Root = known.Root
	td.Extra = nil

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range treeDefinitionKnownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		td.Extra = raw
	}
	return nil
}

// MarshalJSON emits the known fields plus any preserved unknown fields.
func (td TreeDefinition) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(treeDefinitionAlias{
		SchemaVersion:    td.SchemaVersion,
		ID:               td.ID,
		Metadata:         td.Metadata,
		BlackboardSchema: td.BlackboardSchema,
		Root:             td.Root,
	})
	if err != nil {
		return nil, err
	}
	if len(td.Extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range td.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of the tree definition.
func (td TreeDefinition) Clone() TreeDefinition {
	out := td
	out.Root = td.Root.Clone()
	if td.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string(nil), td.Metadata.Tags...)
	}
	if td.BlackboardSchema != nil {
		out.BlackboardSchema = make(map[string]blackboard.KeySpec, len(td.BlackboardSchema))
		for k, v := range td.BlackboardSchema {
			out.BlackboardSchema[k] = v
		}
	}
	if td.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(td.Extra))
		for k, v := range td.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// NodeCount returns the number of nodes in the tree.
func (td *TreeDefinition) NodeCount() int {
	count := 0
	td.EachNode(func(*NodeDefinition, string) { count++ })
	return count
}

// Depth returns the depth of the deepest node, counting the root as 1.
func (td *TreeDefinition) Depth() int {
	var deepest func(nd *NodeDefinition) int
	deepest = func(nd *NodeDefinition) int {
		max := 0
		for i := range nd.Children {
			if d := deepest(&nd.Children[i]); d > max {
				max = d
			}
		}
		return max + 1
	}
	if td.Root.Type == "" {
		return 0
	}
	return deepest(&td.Root)
}

// EachNode visits every node pre-order with its JSON path, starting at
// "root".
func (td *TreeDefinition) EachNode(fn func(nd *NodeDefinition, path string)) {
	var walk func(nd *NodeDefinition, path string)
	walk = func(nd *NodeDefinition, path string) {
		fn(nd, path)
		for i := range nd.Children {
			walk(&nd.Children[i], fmt.Sprintf("%s.children[%d]", path, i))
		}
	}
	walk(&td.Root, "root")
}
