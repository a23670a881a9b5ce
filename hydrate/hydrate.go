// Package hydrate converts between tree definitions and runtime node
// trees: Build materializes a definition into executable nodes, Extract
// recovers a definition from a live tree. The two are structural inverses,
// connected by an IdentityMap so runtime nodes stay free of definition ids.
package hydrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/tree"
)

// DefaultMaxDepth bounds definition nesting when WithMaxDepth is not given.
const DefaultMaxDepth = 64

// Option configures a build.
type Option func(*buildConfig)

type buildConfig struct {
	maxDepth      int
	defaultMemory *bool
	ids           *IdentityMap
}

// WithMaxDepth sets the maximum definition depth the builder accepts,
// counting the root as 1. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(c *buildConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithMemory sets the memory flag used for composites whose config omits
// it, overriding the schema default.
func WithMemory(memory bool) Option {
	return func(c *buildConfig) {
		c.defaultMemory = &memory
	}
}

// WithIDs makes the build record node bindings into an existing identity
// map instead of a fresh one.
func WithIDs(ids *IdentityMap) Option {
	return func(c *buildConfig) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// Result is a successful build: the runtime root, the identity map binding
// every built node to its definition id, and the definition it came from.
type Result struct {
	Root core.Node
	IDs  *IdentityMap
	Def  *tree.TreeDefinition
}

// Build materializes a tree definition into a runtime node tree.
//
// Nodes are processed depth-first: each definition node's type is resolved
// and its config validated before its children are built, and any failure
// aborts the whole build; no partially built tree is ever returned. Errors
// carry the offending node's path from the root, formatted like
// root/Sequence[0]/Inverter[1].
func Build(def *tree.TreeDefinition, reg *registry.Registry, opts ...Option) (*Result, error) {
	if def == nil {
		return nil, errors.New("tree definition is nil")
	}
	if reg == nil {
		return nil, errors.New("registry is nil")
	}

	cfg := &buildConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ids == nil {
		cfg.ids = NewIdentityMap()
	}

	if def.Root.Type == "" {
		return nil, &BuildError{Path: "root", Err: errors.New("tree has no root node")}
	}

	b := &builder{reg: reg, cfg: cfg, onPath: make(map[string]string)}
	root, err := b.node(&def.Root, "root", 1)
	if err != nil {
		return nil, err
	}
	return &Result{Root: root, IDs: cfg.ids, Def: def}, nil
}

type builder struct {
	reg *registry.Registry
	cfg *buildConfig

	// onPath maps the definition ids of the node currently being built and
	// its ancestors to their paths. A child whose id is already here embeds
	// a reference to an ancestor.
	onPath map[string]string
}

func (b *builder) node(nd *tree.NodeDefinition, path string, depth int) (core.Node, error) {
	if depth > b.cfg.maxDepth {
		return nil, &BuildError{
			NodeID:   nd.ID,
			NodeName: nd.Name,
			NodeType: nd.Type,
			Path:     path,
			Err:      &DepthError{Depth: depth, Path: path},
		}
	}
	if nd.ID != "" {
		if _, seen := b.onPath[nd.ID]; seen {
			return nil, &BuildError{
				NodeID:   nd.ID,
				NodeName: nd.Name,
				NodeType: nd.Type,
				Path:     path,
				Err:      &CycleError{NodeID: nd.ID, Path: path},
			}
		}
		b.onPath[nd.ID] = path
		defer delete(b.onPath, nd.ID)
	}

	typeDef, err := b.reg.Get(nd.Type)
	if err != nil {
		return nil, &BuildError{
			NodeID:      nd.ID,
			NodeName:    nd.Name,
			NodeType:    nd.Type,
			Path:        path,
			Suggestions: b.reg.Suggest(nd.Type),
			Err:         err,
		}
	}

	if issues := typeDef.Schema.Validate(nd.Config); len(issues) > 0 {
		return nil, &BuildError{
			NodeID:   nd.ID,
			NodeName: nd.Name,
			NodeType: nd.Type,
			Path:     path,
			Issues:   issues,
			Err:      ErrInvalidConfig,
		}
	}
	nodeCfg := b.effectiveConfig(typeDef, nd.Config)

	children := make([]core.Node, 0, len(nd.Children))
	for i := range nd.Children {
		child := &nd.Children[i]
		childPath := fmt.Sprintf("%s/%s[%d]", path, pathSegment(child.Type), i)
		built, err := b.node(child, childPath, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, built)
	}

	name := nd.Name
	if name == "" {
		name = nd.Type
	}
	node, err := typeDef.Build(name, nodeCfg, children)
	if err != nil {
		return nil, &BuildError{
			NodeID:   nd.ID,
			NodeName: nd.Name,
			NodeType: nd.Type,
			Path:     path,
			Err:      err,
		}
	}

	id := nd.ID
	if id == "" {
		id = uuid.NewString()
	}
	b.cfg.ids.Bind(node, id)
	return node, nil
}

// effectiveConfig applies the WithMemory default and then the schema
// defaults, without mutating the definition's own config map.
func (b *builder) effectiveConfig(typeDef registry.NodeTypeDef, cfg map[string]any) map[string]any {
	if b.cfg.defaultMemory != nil && typeDef.Kind == core.KindComposite {
		if _, set := cfg["memory"]; !set {
			if _, declared := typeDef.Schema.Field("memory"); declared {
				withMemory := make(map[string]any, len(cfg)+1)
				for k, v := range cfg {
					withMemory[k] = v
				}
				withMemory["memory"] = *b.cfg.defaultMemory
				cfg = withMemory
			}
		}
	}
	return typeDef.Schema.ApplyDefaults(cfg)
}

// Extract recovers a definition from a runtime tree using the registered
// extractors. Node ids come from the identity map; nodes the map does not
// know (externally constructed trees) get freshly minted UUIDs, which are
// recorded back into the map so repeated extraction stays stable. Passing
// a nil map mints fresh ids on every call.
//
// The config in the result is the effective config: schema defaults the
// builder applied are written out explicitly.
func Extract(root core.Node, reg *registry.Registry, ids *IdentityMap) (tree.NodeDefinition, error) {
	if root == nil {
		return tree.NodeDefinition{}, errors.New("runtime node is nil")
	}
	if reg == nil {
		return tree.NodeDefinition{}, errors.New("registry is nil")
	}

	typeDef, err := reg.Get(root.Type())
	if err != nil {
		return tree.NodeDefinition{}, fmt.Errorf("extracting %q: %w", root.Name(), err)
	}
	if typeDef.Extract == nil {
		return tree.NodeDefinition{}, fmt.Errorf("extracting %q: type %q has no extractor", root.Name(), root.Type())
	}
	cfg, err := typeDef.Extract(root)
	if err != nil {
		return tree.NodeDefinition{}, fmt.Errorf("extracting %q: %w", root.Name(), err)
	}

	var id string
	if ids != nil {
		id, _ = ids.IDOf(root)
	}
	if id == "" {
		id = uuid.NewString()
		if ids != nil {
			ids.Bind(root, id)
		}
	}

	nd := tree.NodeDefinition{
		Type:   root.Type(),
		ID:     id,
		Name:   root.Name(),
		Config: cfg,
	}
	for _, child := range root.Children() {
		childDef, err := Extract(child, reg, ids)
		if err != nil {
			return tree.NodeDefinition{}, err
		}
		nd.Children = append(nd.Children, childDef)
	}
	return nd, nil
}

// ExtractTree wraps Extract with the tree-level fields of the original
// definition, producing a complete serializable document.
func ExtractTree(res *Result, reg *registry.Registry) (tree.TreeDefinition, error) {
	if res == nil {
		return tree.TreeDefinition{}, errors.New("build result is nil")
	}
	root, err := Extract(res.Root, reg, res.IDs)
	if err != nil {
		return tree.TreeDefinition{}, err
	}
	out := tree.TreeDefinition{Root: root}
	if res.Def != nil {
		out = res.Def.Clone()
		out.Root = root
	}
	return out, nil
}

// pathSegment renders a type tag as a path element: sequence becomes
// Sequence, force_success becomes ForceSuccess.
func pathSegment(typeTag string) string {
	if typeTag == "" {
		return "Unknown"
	}
	parts := strings.Split(typeTag, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}
