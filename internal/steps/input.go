package steps

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type inputConfig struct {
	InputKey  string `mapstructure:"input_key"`
	OutputKey string `mapstructure:"output_key"`
	Transform string `mapstructure:"transform"`
	Validate  struct {
		MinLength int  `mapstructure:"min_length"`
		MaxLength int  `mapstructure:"max_length"`
		Required  bool `mapstructure:"required"`
	} `mapstructure:"validate"`
	Extra map[string]any `mapstructure:",remain"`
}

type inputStep struct {
	nodeID string
	cfg    inputConfig
}

// NewInput builds the factory for input nodes: the workflow entry point
// that validates and optionally transforms the user's input field.
func NewInput(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg inputConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.InputKey == "" {
			cfg.InputKey = state.KeyUserInput
		}
		if cfg.OutputKey == "" {
			cfg.OutputKey = cfg.InputKey
		}
		return &inputStep{nodeID: nodeID, cfg: cfg}, nil
	}
}

func (s *inputStep) Execute(_ context.Context, snapshot state.State) (state.Delta, error) {
	value := snapshot.String(s.cfg.InputKey)
	transformed := applyTransform(value, s.cfg.Transform)

	if s.cfg.Validate.Required && transformed == "" {
		return nil, errors.New("input is required")
	}
	if min := s.cfg.Validate.MinLength; min > 0 && len(transformed) < min {
		return nil, errors.Errorf("input must be at least %d characters", min)
	}
	if max := s.cfg.Validate.MaxLength; max > 0 && len(transformed) > max {
		return nil, errors.Errorf("input must be at most %d characters", max)
	}

	delta := state.Delta{
		state.KeyMetadata: map[string]any{
			"input_processed": true,
			"input_node_id":   s.nodeID,
		},
	}
	// Writing back to the input key would fight its keep_first reducer, so
	// a transform only persists through a distinct output key.
	if s.cfg.OutputKey != s.cfg.InputKey {
		setOutput(delta, s.cfg.OutputKey, transformed)
	}
	return delta, nil
}

func applyTransform(value, transform string) string {
	switch strings.ToLower(transform) {
	case "lowercase":
		return strings.ToLower(value)
	case "uppercase":
		return strings.ToUpper(value)
	case "strip", "trim":
		return strings.TrimSpace(value)
	}
	return value
}
