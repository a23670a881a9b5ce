package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/registry"
)

// Validate runs structural validation on the definition:
//   - BT-001: the root (and every node) must carry a node_type
//   - BT-002: node ids must be unique within the tree
//   - BT-003: blackboard schema access modes must be READ, WRITE, or EXCLUSIVE
//
// It returns every problem found, never stopping at the first, so callers
// can present the complete list at once.
func (td *TreeDefinition) Validate() []Diagnostic {
	var diags []Diagnostic

	// BT-001: every node needs a type tag
	if td.Root.Type == "" {
		diags = append(diags, Diagnostic{
			Code:     "BT-001",
			Severity: SeverityError,
			Message:  "Tree has no root node",
			Path:     "root",
		})
	} else {
		td.EachNode(func(nd *NodeDefinition, path string) {
			if nd.Type == "" && path != "root" {
				diags = append(diags, Diagnostic{
					Code:     "BT-001",
					Severity: SeverityError,
					Message:  "Node has no node_type",
					Path:     path,
				})
			}
		})
	}

	// BT-002: duplicate node ids
	seen := make(map[string]string)
	td.EachNode(func(nd *NodeDefinition, path string) {
		if nd.ID == "" {
			return
		}
		if first, dup := seen[nd.ID]; dup {
			diags = append(diags, Diagnostic{
				Code:     "BT-002",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate node ID %q (first used at %s)", nd.ID, first),
				Path:     path + ".id",
			})
			return
		}
		seen[nd.ID] = path
	})

	// BT-003: blackboard schema access modes
	keys := make([]string, 0, len(td.BlackboardSchema))
	for k := range td.BlackboardSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		spec := td.BlackboardSchema[k]
		if spec.Access != "" && !spec.Access.Valid() {
			diags = append(diags, Diagnostic{
				Code:     "BT-003",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Blackboard key %q declares unknown access mode %q", k, spec.Access),
				Path:     fmt.Sprintf("blackboard_schema.%s.access", k),
			})
		}
	}

	return diags
}

// ValidateWithRegistry runs structural validation plus registry-dependent
// checks:
//   - BT-004: node type must be registered (unknown types get suggestions)
//   - BT-005: decorator types wrap exactly one child
//   - BT-006: leaf types take no children
//   - BT-007: composite types with no children (warning)
//   - BT-008: node config must satisfy the type's config schema
func (td *TreeDefinition) ValidateWithRegistry(reg *registry.Registry) []Diagnostic {
	diags := td.Validate()
	if reg == nil || td.Root.Type == "" {
		return diags
	}

	td.EachNode(func(nd *NodeDefinition, path string) {
		if nd.Type == "" {
			return
		}
		def, err := reg.Get(nd.Type)
		if err != nil {
			msg := fmt.Sprintf("Unknown node type %q", nd.Type)
			if suggestions := reg.Suggest(nd.Type); len(suggestions) > 0 {
				msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
			}
			diags = append(diags, Diagnostic{
				Code:     "BT-004",
				Severity: SeverityError,
				Message:  msg,
				Path:     path + ".node_type",
			})
			return
		}

		diags = append(diags, checkArity(def, nd, path)...)

		for _, issue := range def.Schema.Validate(nd.Config) {
			diags = append(diags, Diagnostic{
				Code:     "BT-008",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Config for %q: %s", nd.Type, issue.String()),
				Path:     path + ".config",
			})
		}
	})

	return diags
}

func checkArity(def registry.NodeTypeDef, nd *NodeDefinition, path string) []Diagnostic {
	switch def.Kind {
	case core.KindDecorator:
		if len(nd.Children) != 1 {
			return []Diagnostic{{
				Code:     "BT-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Decorator %q wraps exactly one child, got %d", nd.Type, len(nd.Children)),
				Path:     path + ".children",
			}}
		}
	case core.KindLeaf:
		if len(nd.Children) != 0 {
			return []Diagnostic{{
				Code:     "BT-006",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Leaf %q takes no children, got %d", nd.Type, len(nd.Children)),
				Path:     path + ".children",
			}}
		}
	case core.KindComposite:
		if len(nd.Children) == 0 {
			return []Diagnostic{{
				Code:     "BT-007",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Composite %q has no children and will never advance", nd.Type),
				Path:     path + ".children",
			}}
		}
	}
	return nil
}
