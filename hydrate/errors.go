package hydrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bramble-labs/bramble/registry"
)

// ErrInvalidConfig is wrapped by a BuildError whose node config failed
// schema validation; the individual problems are in Issues.
var ErrInvalidConfig = errors.New("invalid node config")

// BuildError describes a definition node the builder could not turn into
// a runtime node. It carries enough context for a caller to render the
// problem without re-deriving it: the node's identity, its path from the
// root, aggregated config issues, and type-tag suggestions.
type BuildError struct {
	NodeID      string
	NodeName    string
	NodeType    string
	Path        string
	Issues      []registry.Issue
	Suggestions []string
	Err         error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "building node %q", e.describe())
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, issue := range e.Issues {
		fmt.Fprintf(&b, "; %s", issue.String())
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

func (e *BuildError) describe() string {
	switch {
	case e.NodeName != "":
		return e.NodeName
	case e.NodeID != "":
		return e.NodeID
	default:
		return e.NodeType
	}
}

// CycleError reports a definition that embeds a reference to an ancestor's
// id. No construction happens once a cycle is found. The builder always
// wraps it in a BuildError, so errors.As finds either type.
type CycleError struct {
	NodeID string
	Path   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular reference: node id %q at %s already appears on the path from root", e.NodeID, e.Path)
}

// DepthError reports a definition nested beyond the configured maximum.
// Like CycleError it arrives wrapped in a BuildError.
type DepthError struct {
	Depth int
	Path  string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("depth limit exceeded: node at %s is %d levels deep", e.Path, e.Depth)
}
