package hydrate

import "github.com/bramble-labs/bramble/core"

// IdentityMap associates runtime nodes with their definition ids. Runtime
// nodes never carry ids themselves; this side table is the only place the
// association lives, so snapshots and extraction can name nodes without
// the node model knowing about definitions.
type IdentityMap struct {
	byNode map[core.Node]string
	byID   map[string]core.Node
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		byNode: make(map[core.Node]string),
		byID:   make(map[string]core.Node),
	}
}

// Bind records that node was built from the definition node with id.
// Rebinding a node replaces its previous id.
func (m *IdentityMap) Bind(node core.Node, id string) {
	if node == nil || id == "" {
		return
	}
	if old, ok := m.byNode[node]; ok {
		delete(m.byID, old)
	}
	m.byNode[node] = id
	m.byID[id] = node
}

// IDOf returns the definition id the node was built from.
func (m *IdentityMap) IDOf(node core.Node) (string, bool) {
	id, ok := m.byNode[node]
	return id, ok
}

// NodeOf returns the runtime node built from the definition node with id.
func (m *IdentityMap) NodeOf(id string) (core.Node, bool) {
	node, ok := m.byID[id]
	return node, ok
}

// Len returns the number of bound nodes.
func (m *IdentityMap) Len() int { return len(m.byNode) }
