package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/bramble-labs/bramble/behavior"
	"github.com/bramble-labs/bramble/core"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	def := NodeTypeDef{
		Type:        "test_node",
		Kind:        core.KindLeaf,
		DisplayName: "Test Node",
		Description: "A test node",
		Schema: ConfigSchema{
			Fields: []FieldSpec{{Key: "key", Type: FieldString, Required: true}},
		},
	}

	if err := r.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("test_node")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != "test_node" {
		t.Errorf("Type = %q, want %q", got.Type, "test_node")
	}
	if got.Kind != core.KindLeaf {
		t.Errorf("Kind = %q, want %q", got.Kind, core.KindLeaf)
	}
	if len(got.Schema.Fields) != 1 {
		t.Errorf("Schema field count = %d, want 1", len(got.Schema.Fields))
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("nonexistent")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("Get error = %v, want ErrTypeNotFound", err)
	}
}

func TestRegistry_RegisterEmptyTag(t *testing.T) {
	r := New()
	if err := r.Register(NodeTypeDef{}); err == nil {
		t.Error("Register should reject an empty type tag")
	}
}

func TestRegistry_Has(t *testing.T) {
	r := New()
	r.Register(NodeTypeDef{Type: "exists"})

	if !r.Has("exists") {
		t.Error("Has should return true for registered type")
	}
	if r.Has("missing") {
		t.Error("Has should return false for unregistered type")
	}
}

func TestRegistry_All_PreservesOrder(t *testing.T) {
	r := New()
	r.Register(NodeTypeDef{Type: "alpha"})
	r.Register(NodeTypeDef{Type: "beta"})
	r.Register(NodeTypeDef{Type: "gamma"})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d items, want 3", len(all))
	}
	expected := []string{"alpha", "beta", "gamma"}
	for i, want := range expected {
		if all[i].Type != want {
			t.Errorf("All()[%d].Type = %q, want %q", i, all[i].Type, want)
		}
	}
	if !reflect.DeepEqual(r.Types(), expected) {
		t.Errorf("Types() = %v, want %v", r.Types(), expected)
	}
}

func TestRegistry_RegisterOverwrite(t *testing.T) {
	r := New()
	r.Register(NodeTypeDef{Type: "first"})
	r.Register(NodeTypeDef{Type: "node", DisplayName: "Original"})
	r.Register(NodeTypeDef{Type: "node", DisplayName: "Updated"})

	got, _ := r.Get("node")
	if got.DisplayName != "Updated" {
		t.Errorf("DisplayName = %q, want %q (should overwrite)", got.DisplayName, "Updated")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2 (overwrite should not duplicate)", r.Len())
	}
	// Overwriting keeps the original order position
	if types := r.Types(); types[1] != "node" {
		t.Errorf("Types()[1] = %q, want %q", types[1], "node")
	}
}

func TestRegistry_Len(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Errorf("empty registry Len = %d, want 0", r.Len())
	}
	r.Register(NodeTypeDef{Type: "a"})
	r.Register(NodeTypeDef{Type: "b"})
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_Suggest(t *testing.T) {
	r := Builtins()

	tests := []struct {
		name string
		tag  string
		want []string
	}{
		{"typo", "sequnce", []string{"sequence"}},
		{"case insensitive match", "SEQUENCE", []string{"sequence"}},
		{"prefix", "force", []string{"force_success", "force_failure"}},
		{"short typo", "wat", []string{"wait"}},
		{"nothing close", "quaternion", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Suggest(tt.tag)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggest(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestRegistry_SuggestCapsAtThree(t *testing.T) {
	r := New()
	r.Register(NodeTypeDef{Type: "node_a"})
	r.Register(NodeTypeDef{Type: "node_b"})
	r.Register(NodeTypeDef{Type: "node_c"})
	r.Register(NodeTypeDef{Type: "node_d"})

	got := r.Suggest("node")
	if len(got) != 3 {
		t.Errorf("Suggest returned %d tags, want 3", len(got))
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(NodeTypeDef{Type: "concurrent"})
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Get("concurrent")
			r.Has("concurrent")
			r.Suggest("concurent")
			r.All()
			r.Len()
		}()
	}

	wg.Wait()
	// If we get here without data race panic, the test passes
}

// --- Builtin registration tests ---

func TestBuiltins_AllExpectedTypesRegistered(t *testing.T) {
	r := Builtins()
	expected := []string{
		"sequence",
		"selector",
		"parallel",
		"inverter",
		"force_success",
		"force_failure",
		"repeat",
		"retry",
		"timeout",
		"condition",
		"blackboard_write",
		"counter",
		"wait",
		"idle",
		"always",
		"log",
	}

	for _, typeName := range expected {
		if !r.Has(typeName) {
			t.Errorf("built-in type %q not registered", typeName)
		}
	}
	if r.Len() != len(expected) {
		t.Errorf("Len = %d, want %d", r.Len(), len(expected))
	}
}

func TestBuiltins_Kinds(t *testing.T) {
	r := Builtins()
	tests := []struct {
		typeName string
		kind     core.Kind
	}{
		{"sequence", core.KindComposite},
		{"selector", core.KindComposite},
		{"parallel", core.KindComposite},
		{"inverter", core.KindDecorator},
		{"force_success", core.KindDecorator},
		{"force_failure", core.KindDecorator},
		{"repeat", core.KindDecorator},
		{"retry", core.KindDecorator},
		{"timeout", core.KindDecorator},
		{"condition", core.KindLeaf},
		{"blackboard_write", core.KindLeaf},
		{"counter", core.KindLeaf},
		{"wait", core.KindLeaf},
		{"idle", core.KindLeaf},
		{"always", core.KindLeaf},
		{"log", core.KindLeaf},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			def, err := r.Get(tt.typeName)
			if err != nil {
				t.Fatalf("type %q not found", tt.typeName)
			}
			if def.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", def.Kind, tt.kind)
			}
		})
	}
}

func TestBuiltins_AllComplete(t *testing.T) {
	r := Builtins()
	for _, def := range r.All() {
		if def.DisplayName == "" {
			t.Errorf("type %q has empty display name", def.Type)
		}
		if def.Description == "" {
			t.Errorf("type %q has empty description", def.Type)
		}
		if def.Build == nil {
			t.Errorf("type %q has no builder", def.Type)
		}
		if def.Extract == nil {
			t.Errorf("type %q has no extractor", def.Type)
		}
	}
}

func TestBuiltins_BuildAppliesConfig(t *testing.T) {
	r := Builtins()

	def, _ := r.Get("sequence")
	node, err := def.Build("seq", map[string]any{"memory": false}, []core.Node{behavior.NewIdle("idle")})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	seq, ok := node.(*behavior.Sequence)
	if !ok {
		t.Fatalf("Build returned %T, want *behavior.Sequence", node)
	}
	if seq.Memory() {
		t.Error("memory = true, want false")
	}
	if seq.Name() != "seq" {
		t.Errorf("Name = %q, want %q", seq.Name(), "seq")
	}

	cfg, err := def.Extract(node)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if cfg["memory"] != false {
		t.Errorf("extracted memory = %v, want false", cfg["memory"])
	}
}

func TestBuiltins_BuildCoercesJSONNumbers(t *testing.T) {
	r := Builtins()

	// JSON decoding hands every number over as float64.
	def, _ := r.Get("wait")
	node, err := def.Build("pause", map[string]any{"ticks": float64(3)}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	w := node.(*behavior.Wait)
	if w.Ticks() != 3 {
		t.Errorf("Ticks = %d, want 3", w.Ticks())
	}
}

func TestBuiltins_DecoratorArity(t *testing.T) {
	r := Builtins()
	decorators := []string{"inverter", "force_success", "force_failure"}

	for _, typeName := range decorators {
		t.Run(typeName, func(t *testing.T) {
			def, _ := r.Get(typeName)
			if _, err := def.Build("d", nil, nil); err == nil {
				t.Error("Build with zero children should fail")
			}
			two := []core.Node{behavior.NewIdle("a"), behavior.NewIdle("b")}
			if _, err := def.Build("d", nil, two); err == nil {
				t.Error("Build with two children should fail")
			}
		})
	}
}

func TestBuiltins_LeafRejectsChildren(t *testing.T) {
	r := Builtins()
	def, _ := r.Get("idle")
	if _, err := def.Build("leaf", nil, []core.Node{behavior.NewIdle("x")}); err == nil {
		t.Error("leaf Build with a child should fail")
	}
}

func TestBuiltins_RepeatRejectsZeroTimes(t *testing.T) {
	r := Builtins()
	def, _ := r.Get("repeat")
	_, err := def.Build("loop", map[string]any{"times": 0}, []core.Node{behavior.NewIdle("x")})
	if err == nil {
		t.Error("Build with times=0 should fail")
	}
}

func TestBuiltins_AlwaysRoundTrip(t *testing.T) {
	r := Builtins()
	def, _ := r.Get("always")

	node, err := def.Build("fail", map[string]any{"status": "failure"}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cfg, err := def.Extract(node)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if cfg["status"] != "failure" {
		t.Errorf("extracted status = %v, want %q", cfg["status"], "failure")
	}
}

func TestBuiltins_ConditionRoundTrip(t *testing.T) {
	r := Builtins()
	def, _ := r.Get("condition")

	in := map[string]any{"key": "battery_level", "op": "lt", "value": 20}
	node, err := def.Build("battery low", in, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, err := def.Extract(node)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out["key"] != "battery_level" || out["op"] != "lt" {
		t.Errorf("extracted config = %v", out)
	}
}

func TestBuiltins_ExtractRejectsWrongType(t *testing.T) {
	r := Builtins()
	def, _ := r.Get("sequence")
	if _, err := def.Extract(behavior.NewIdle("not a sequence")); err == nil {
		t.Error("Extract should fail on a node of another type")
	}
}
