package steps

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type imageConfig struct {
	SourceID       string         `mapstructure:"source_id"`
	Prompt         string         `mapstructure:"prompt"`
	PromptTemplate string         `mapstructure:"prompt_template"`
	Size           string         `mapstructure:"size"`
	Quality        string         `mapstructure:"quality"`
	Style          string         `mapstructure:"style"`
	OutputKey      string         `mapstructure:"output_key"`
	Extra          map[string]any `mapstructure:",remain"`
}

type imageStep struct {
	nodeID string
	cfg    imageConfig
	client *sources.ImageClient
	log    *slog.Logger
}

// NewImage builds the factory for image nodes.
func NewImage(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg imageConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Size == "" {
			cfg.Size = "1024x1024"
		}
		if cfg.OutputKey == "" {
			cfg.OutputKey = state.KeyImageResult
		}

		client, err := deps.resolver().Image(cfg.SourceID, config)
		if err != nil {
			return nil, err
		}
		return &imageStep{nodeID: nodeID, cfg: cfg, client: client, log: deps.logger()}, nil
	}
}

func (s *imageStep) Execute(ctx context.Context, snapshot state.State) (state.Delta, error) {
	prompt := s.buildPrompt(snapshot)
	if prompt == "" {
		return nil, errors.New("no prompt available")
	}

	result, err := s.client.Generate(ctx, sources.ImageRequest{
		Prompt:  prompt,
		Size:    s.cfg.Size,
		Quality: s.cfg.Quality,
		Style:   s.cfg.Style,
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("image generation completed", "node_id", s.nodeID, "type", result["type"])

	delta := state.Delta{}
	setOutput(delta, s.cfg.OutputKey, result)
	return delta, nil
}

// buildPrompt prefers an explicit prompt, then falls back to earlier text
// output, then to the raw user input.
func (s *imageStep) buildPrompt(snapshot state.State) string {
	if s.cfg.PromptTemplate != "" {
		return Interpolate(s.cfg.PromptTemplate, snapshot)
	}
	if s.cfg.Prompt != "" {
		return s.cfg.Prompt
	}
	if text := snapshot.String(state.KeyTextResult); text != "" {
		return text
	}
	return snapshot.String(state.KeyUserInput)
}
