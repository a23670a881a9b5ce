// Package bramble is a behavior tree engine: declarative tree definitions
// are validated, materialized into executable node trees, and driven by
// discrete ticks against a shared blackboard.
//
// This file re-exports the engine's primary types and constructors so small
// programs can work from a single import. Larger programs should import the
// subpackages directly for clearer dependencies:
//
//	import "github.com/bramble-labs/bramble/core"
//	import "github.com/bramble-labs/bramble/tree"
//	import "github.com/bramble-labs/bramble/exec"
package bramble

import (
	"context"
	"io"
	"log/slog"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/hydrate"
	"github.com/bramble-labs/bramble/loader"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/tree"
)

// Core type aliases.
type (
	// Status is a node evaluation result.
	Status = core.Status

	// Node is one runtime behavior tree node.
	Node = core.Node

	// Tick carries per-pass state through one whole-tree evaluation.
	Tick = core.Tick

	// Visitor observes node evaluations without the nodes knowing about it.
	Visitor = core.Visitor

	// Board is the shared blackboard nodes read and write.
	Board = blackboard.Board

	// KeySpec declares a blackboard key's type, access mode, and default.
	KeySpec = blackboard.KeySpec
)

// Node status values.
const (
	StatusInvalid = core.StatusInvalid
	StatusRunning = core.StatusRunning
	StatusSuccess = core.StatusSuccess
	StatusFailure = core.StatusFailure
)

// Definition type aliases.
type (
	// TreeDefinition is a serializable behavior tree document.
	TreeDefinition = tree.TreeDefinition

	// NodeDefinition is one node of a TreeDefinition.
	NodeDefinition = tree.NodeDefinition

	// Metadata names and describes a tree definition.
	Metadata = tree.Metadata

	// Diagnostic is a validation error or warning.
	Diagnostic = tree.Diagnostic
)

// Build and execution type aliases.
type (
	// Registry maps node type tags to builders, extractors, and schemas.
	Registry = registry.Registry

	// BuildResult is a materialized tree plus its node identity map.
	BuildResult = hydrate.Result

	// Service owns live executions.
	Service = exec.Service

	// Instance is one live execution of a built tree.
	Instance = exec.Instance

	// TickRequest asks an instance for one or more evaluations.
	TickRequest = exec.TickRequest

	// TickResult reports what a tick request did.
	TickResult = exec.TickResult

	// CreateOptions configures Service.Create.
	CreateOptions = exec.CreateOptions
)

// Constructors and entry points.
var (
	// Load parses a JSON or YAML definition, detecting the format.
	Load = loader.Load

	// LoadFile reads and parses a definition file.
	LoadFile = loader.LoadFile

	// Builtins returns a registry with every builtin node type registered.
	Builtins = registry.Builtins

	// Build materializes a definition into a runtime node tree.
	Build = hydrate.Build

	// ExtractTree reverses Build, producing the canonical definition.
	ExtractTree = hydrate.ExtractTree

	// NewBoard creates an empty blackboard.
	NewBoard = blackboard.New

	// NewService creates an execution service on a registry.
	NewService = exec.NewService
)

// RunOnce builds def and ticks it until the root reports a terminal status
// or maxTicks evaluations have run, whichever comes first. Convenient for
// tests and one-shot tools; long-lived programs should hold an exec.Service.
func RunOnce(ctx context.Context, def *TreeDefinition, maxTicks int) (*TickResult, error) {
	if maxTicks < 1 {
		maxTicks = 1
	}

	svc := exec.NewService(registry.Builtins(),
		exec.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	in, err := svc.Create(def, exec.CreateOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = svc.Destroy(in.ID())
	}()

	var last *exec.TickResult
	for i := 0; i < maxTicks; i++ {
		res, err := in.Tick(ctx, exec.TickRequest{Count: 1})
		if err != nil {
			return last, err
		}
		last = res
		if res.RootStatus != core.StatusRunning {
			break
		}
	}
	return last, nil
}
