package steps

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type llmConfig struct {
	SourceID       string         `mapstructure:"source_id"`
	Prompt         string         `mapstructure:"prompt"`
	PromptTemplate string         `mapstructure:"prompt_template"`
	SystemPrompt   string         `mapstructure:"system_prompt"`
	Temperature    float64        `mapstructure:"temperature"`
	MaxTokens      int            `mapstructure:"max_tokens"`
	OutputKey      string         `mapstructure:"output_key"`
	Extra          map[string]any `mapstructure:",remain"`
}

type llmStep struct {
	nodeID string
	cfg    llmConfig
	client *sources.LLMClient
	log    *slog.Logger
}

// NewLLM builds the factory for llm nodes. The model client resolves at
// build time, so a workflow with a broken llm source fails compilation.
func NewLLM(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg llmConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Temperature == 0 {
			cfg.Temperature = 0.7
		}
		if cfg.MaxTokens == 0 {
			cfg.MaxTokens = 4096
		}
		if cfg.OutputKey == "" {
			cfg.OutputKey = state.KeyTextResult
		}

		client, err := deps.resolver().LLM(cfg.SourceID, config)
		if err != nil {
			return nil, err
		}
		return &llmStep{nodeID: nodeID, cfg: cfg, client: client, log: deps.logger()}, nil
	}
}

func (s *llmStep) Execute(ctx context.Context, snapshot state.State) (state.Delta, error) {
	prompt := s.buildPrompt(snapshot)
	if prompt == "" {
		return nil, errors.New("no prompt available")
	}

	result, err := s.client.Generate(ctx, s.cfg.SystemPrompt, prompt, s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}
	s.log.Debug("llm generation completed",
		"node_id", s.nodeID, "model", s.client.ModelName(),
		"tokens", result.Tokens, "output_length", len(result.Text))

	delta := state.Delta{state.KeyTokensUsed: result.Tokens}
	setOutput(delta, s.cfg.OutputKey, result.Text)
	if result.Cost > 0 {
		delta[state.KeyCost] = result.Cost
	}
	return delta, nil
}

func (s *llmStep) buildPrompt(snapshot state.State) string {
	if s.cfg.PromptTemplate != "" {
		return Interpolate(s.cfg.PromptTemplate, snapshot)
	}
	if s.cfg.Prompt != "" {
		return s.cfg.Prompt
	}
	return snapshot.String(state.KeyUserInput)
}
