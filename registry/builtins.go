package registry

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/bramble-labs/bramble/behavior"
	"github.com/bramble-labs/bramble/core"
)

// Builtins returns a registry preloaded with the builtin node set.
func Builtins() *Registry {
	r := New()
	registerBuiltins(r)
	return r
}

// decodeConfig decodes a validated config map into a typed struct.
// Weakly typed input converts JSON's float64 numbers into int fields.
func decodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(cfg)
}

func exactlyOne(typ string, children []core.Node) (core.Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("%s wraps exactly one child, got %d", typ, len(children))
	}
	return children[0], nil
}

func noChildren(typ string, children []core.Node) error {
	if len(children) != 0 {
		return fmt.Errorf("%s is a leaf and takes no children, got %d", typ, len(children))
	}
	return nil
}

func as[T core.Node](n core.Node) (T, error) {
	v, ok := n.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("expected %T, got %T", zero, n)
	}
	return v, nil
}

// registerBuiltins registers every builtin node type: the three
// composites, the standard decorators, and the blackboard leaves.
func registerBuiltins(r *Registry) {
	r.Register(NodeTypeDef{
		Type:        behavior.TypeSequence,
		Kind:        core.KindComposite,
		DisplayName: "Sequence",
		Description: "Tick children in order; fail or stay running on the first child that does, succeed when all succeed",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "memory", Type: FieldBool, Default: true, Description: "Resume at the previously running child instead of restarting at the first"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			var c struct {
				Memory bool `mapstructure:"memory"`
			}
			c.Memory = true
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewSequence(name, c.Memory, children...), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Sequence](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"memory": v.Memory()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeSelector,
		Kind:        core.KindComposite,
		DisplayName: "Selector",
		Description: "Tick children in order; succeed or stay running on the first child that does, fail when all fail",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "memory", Type: FieldBool, Default: true, Description: "Resume at the previously running child instead of restarting at the first"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			var c struct {
				Memory bool `mapstructure:"memory"`
			}
			c.Memory = true
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewSelector(name, c.Memory, children...), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Selector](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"memory": v.Memory()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeParallel,
		Kind:        core.KindComposite,
		DisplayName: "Parallel",
		Description: "Tick every child each pass and aggregate results under the configured policy",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{
					Key:         "policy",
					Type:        FieldString,
					Default:     string(behavior.PolicyRequireAll),
					Enum:        []string{string(behavior.PolicyRequireOne), string(behavior.PolicyRequireAll)},
					Description: "require_one succeeds on the first success; require_all needs every child to succeed",
				},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			var c struct {
				Policy string `mapstructure:"policy"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewParallel(name, behavior.ParallelPolicy(c.Policy), children...), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Parallel](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"policy": string(v.Policy())}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeInverter,
		Kind:        core.KindDecorator,
		DisplayName: "Inverter",
		Description: "Swap the child's SUCCESS and FAILURE; RUNNING passes through",
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeInverter, children)
			if err != nil {
				return nil, err
			}
			return behavior.NewInverter(name, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			if _, err := as[*behavior.Inverter](n); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeForceSuccess,
		Kind:        core.KindDecorator,
		DisplayName: "Force Success",
		Description: "Report SUCCESS whenever the child reaches a terminal status",
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeForceSuccess, children)
			if err != nil {
				return nil, err
			}
			return behavior.NewForceSuccess(name, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			if _, err := as[*behavior.ForceSuccess](n); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeForceFailure,
		Kind:        core.KindDecorator,
		DisplayName: "Force Failure",
		Description: "Report FAILURE whenever the child reaches a terminal status",
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeForceFailure, children)
			if err != nil {
				return nil, err
			}
			return behavior.NewForceFailure(name, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			if _, err := as[*behavior.ForceFailure](n); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeRepeat,
		Kind:        core.KindDecorator,
		DisplayName: "Repeat",
		Description: "Re-run the child a fixed number of successful iterations",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "times", Type: FieldInt, Required: true, Description: "Number of successful child completions before reporting SUCCESS"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeRepeat, children)
			if err != nil {
				return nil, err
			}
			var c struct {
				Times int `mapstructure:"times"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			if c.Times < 1 {
				return nil, fmt.Errorf("repeat times must be at least 1, got %d", c.Times)
			}
			return behavior.NewRepeat(name, c.Times, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Repeat](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"times": v.Times()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeRetry,
		Kind:        core.KindDecorator,
		DisplayName: "Retry",
		Description: "Re-run a failing child up to a fixed number of attempts",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "attempts", Type: FieldInt, Required: true, Description: "Maximum child attempts before reporting FAILURE"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeRetry, children)
			if err != nil {
				return nil, err
			}
			var c struct {
				Attempts int `mapstructure:"attempts"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			if c.Attempts < 1 {
				return nil, fmt.Errorf("retry attempts must be at least 1, got %d", c.Attempts)
			}
			return behavior.NewRetry(name, c.Attempts, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Retry](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"attempts": v.Attempts()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeTimeout,
		Kind:        core.KindDecorator,
		DisplayName: "Timeout",
		Description: "Fail the child if it is still running after a fixed tick budget",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "ticks", Type: FieldInt, Required: true, Description: "Tick budget before the child is reset and FAILURE reported"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			child, err := exactlyOne(behavior.TypeTimeout, children)
			if err != nil {
				return nil, err
			}
			var c struct {
				Ticks int `mapstructure:"ticks"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			if c.Ticks < 1 {
				return nil, fmt.Errorf("timeout ticks must be at least 1, got %d", c.Ticks)
			}
			return behavior.NewTimeout(name, c.Ticks, child), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Timeout](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ticks": v.Budget()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeCondition,
		Kind:        core.KindLeaf,
		DisplayName: "Condition",
		Description: "Compare a blackboard key against a value; SUCCESS when the comparison holds",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "key", Type: FieldString, Required: true, Description: "Blackboard key to read"},
				{Key: "op", Type: FieldString, Default: string(behavior.OpEq), Enum: behavior.CompareOps(), Description: "Comparison operator"},
				{Key: "value", Type: FieldAny, Description: "Operand for the comparison; unused by exists"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeCondition, children); err != nil {
				return nil, err
			}
			var c struct {
				Key   string `mapstructure:"key"`
				Op    string `mapstructure:"op"`
				Value any    `mapstructure:"value"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewCondition(name, c.Key, behavior.CompareOp(c.Op), c.Value), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Condition](n)
			if err != nil {
				return nil, err
			}
			cfg := map[string]any{"key": v.Key(), "op": string(v.Op())}
			if v.Value() != nil {
				cfg["value"] = v.Value()
			}
			return cfg, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeWrite,
		Kind:        core.KindLeaf,
		DisplayName: "Blackboard Write",
		Description: "Set a blackboard key to a fixed value",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "key", Type: FieldString, Required: true, Description: "Blackboard key to write"},
				{Key: "value", Type: FieldAny, Required: true, Description: "Value to store"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeWrite, children); err != nil {
				return nil, err
			}
			var c struct {
				Key   string `mapstructure:"key"`
				Value any    `mapstructure:"value"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewWrite(name, c.Key, c.Value), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Write](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": v.Key(), "value": v.Value()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeCounter,
		Kind:        core.KindLeaf,
		DisplayName: "Counter",
		Description: "Add a delta to a numeric blackboard key, starting from zero when unset",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "key", Type: FieldString, Required: true, Description: "Blackboard key to accumulate into"},
				{Key: "delta", Type: FieldFloat, Default: float64(1), Description: "Amount added each tick"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeCounter, children); err != nil {
				return nil, err
			}
			var c struct {
				Key   string  `mapstructure:"key"`
				Delta float64 `mapstructure:"delta"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewCounter(name, c.Key, c.Delta), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Counter](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": v.Key(), "delta": v.Delta()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeWait,
		Kind:        core.KindLeaf,
		DisplayName: "Wait",
		Description: "Stay RUNNING for a fixed number of ticks, then succeed",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "ticks", Type: FieldInt, Required: true, Description: "Ticks to remain RUNNING before SUCCESS"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeWait, children); err != nil {
				return nil, err
			}
			var c struct {
				Ticks int `mapstructure:"ticks"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			if c.Ticks < 0 {
				return nil, fmt.Errorf("wait ticks must not be negative, got %d", c.Ticks)
			}
			return behavior.NewWait(name, c.Ticks), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Wait](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ticks": v.Ticks()}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeIdle,
		Kind:        core.KindLeaf,
		DisplayName: "Idle",
		Description: "Stay RUNNING forever; useful as a placeholder branch",
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeIdle, children); err != nil {
				return nil, err
			}
			return behavior.NewIdle(name), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			if _, err := as[*behavior.Idle](n); err != nil {
				return nil, err
			}
			return map[string]any{}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeAlways,
		Kind:        core.KindLeaf,
		DisplayName: "Always",
		Description: "Report a fixed terminal status on every tick",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "status", Type: FieldString, Default: "success", Enum: []string{"success", "failure"}, Description: "Terminal status to report"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeAlways, children); err != nil {
				return nil, err
			}
			var c struct {
				Status string `mapstructure:"status"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			status := core.StatusSuccess
			if strings.EqualFold(c.Status, string(core.StatusFailure)) {
				status = core.StatusFailure
			}
			return behavior.NewAlways(name, status), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Always](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"status": strings.ToLower(string(v.Result()))}, nil
		},
	})

	r.Register(NodeTypeDef{
		Type:        behavior.TypeLog,
		Kind:        core.KindLeaf,
		DisplayName: "Log",
		Description: "Emit a structured log record and succeed",
		Schema: ConfigSchema{
			Fields: []FieldSpec{
				{Key: "message", Type: FieldString, Required: true, Description: "Message to log"},
				{Key: "level", Type: FieldString, Default: "info", Enum: []string{"debug", "info", "warn", "error"}, Description: "Log level"},
			},
		},
		Build: func(name string, cfg map[string]any, children []core.Node) (core.Node, error) {
			if err := noChildren(behavior.TypeLog, children); err != nil {
				return nil, err
			}
			var c struct {
				Message string `mapstructure:"message"`
				Level   string `mapstructure:"level"`
			}
			if err := decodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			return behavior.NewLog(name, c.Message, c.Level, nil), nil
		},
		Extract: func(n core.Node) (map[string]any, error) {
			v, err := as[*behavior.Log](n)
			if err != nil {
				return nil, err
			}
			return map[string]any{"message": v.Message(), "level": v.Level()}, nil
		},
	})
}
