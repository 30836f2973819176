package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type aggregatorConfig struct {
	Strategy        string         `mapstructure:"strategy"`
	OutputKey       string         `mapstructure:"output_key"`
	SourceKeys      []string       `mapstructure:"source_keys"`
	PriorityOrder   []string       `mapstructure:"priority_order"`
	Template        string         `mapstructure:"template"`
	Separator       string         `mapstructure:"separator"`
	SelectKey       string         `mapstructure:"select_key"`
	IncludeMetadata *bool          `mapstructure:"include_metadata"`
	Extra           map[string]any `mapstructure:",remain"`
}

type aggregatorStep struct {
	nodeID string
	cfg    aggregatorConfig
	log    *slog.Logger
}

// NewAggregator builds the factory for aggregator nodes: the terminal step
// that folds branch results into the final output.
func NewAggregator(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg aggregatorConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Strategy == "" {
			cfg.Strategy = "merge"
		}
		if cfg.OutputKey == "" {
			cfg.OutputKey = state.KeyFinalOutput
		}
		if len(cfg.SourceKeys) == 0 {
			cfg.SourceKeys = []string{state.KeyTextResult, state.KeyImageResult, state.KeyDBResult}
		}
		return &aggregatorStep{nodeID: nodeID, cfg: cfg, log: deps.logger()}, nil
	}
}

func (s *aggregatorStep) Execute(_ context.Context, snapshot state.State) (state.Delta, error) {
	var result any
	switch s.cfg.Strategy {
	case "priority":
		order := s.cfg.PriorityOrder
		if len(order) == 0 {
			order = s.cfg.SourceKeys
		}
		result = s.aggregatePriority(snapshot, order)
	case "template":
		result = s.aggregateTemplate(snapshot)
	case "concat":
		separator := s.cfg.Separator
		if separator == "" {
			separator = "\n\n"
		}
		result = s.aggregateConcat(snapshot, separator)
	case "select":
		key := s.cfg.SelectKey
		if key == "" {
			key = state.KeyTextResult
		}
		result, _ = lookup(snapshot, key)
	case "merge":
		result = s.aggregateMerge(snapshot)
	default:
		s.log.Warn("unknown aggregation strategy, merging",
			"node_id", s.nodeID, "strategy", s.cfg.Strategy)
		result = s.aggregateMerge(snapshot)
	}

	final := result
	if s.cfg.IncludeMetadata == nil || *s.cfg.IncludeMetadata {
		final = map[string]any{
			"result":         result,
			"execution_path": snapshot.Strings(state.KeyExecutionPath),
			"tokens_used":    snapshot.Int(state.KeyTokensUsed),
			"cost":           snapshot.Float(state.KeyCost),
		}
	}
	delta := state.Delta{}
	setOutput(delta, s.cfg.OutputKey, final)
	return delta, nil
}

// lookup finds a source value in the state proper, falling back to the
// outputs map for fields nodes stashed under custom keys.
func lookup(snapshot state.State, key string) (any, bool) {
	if value, ok := snapshot[key]; ok && !emptyValue(value) {
		return value, true
	}
	if value, ok := snapshot.Map(state.KeyOutputs)[key]; ok && !emptyValue(value) {
		return value, true
	}
	return nil, false
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func (s *aggregatorStep) aggregateMerge(snapshot state.State) map[string]any {
	merged := make(map[string]any)
	for _, key := range s.cfg.SourceKeys {
		if value, ok := lookup(snapshot, key); ok {
			merged[key] = value
		}
	}
	return merged
}

func (s *aggregatorStep) aggregatePriority(snapshot state.State, order []string) any {
	for _, key := range order {
		if value, ok := lookup(snapshot, key); ok {
			return value
		}
	}
	return nil
}

const defaultAggregateTemplate = "Result:\n{text_result}\n\nImage: {image_result}\n\nData: {db_result}"

func (s *aggregatorStep) aggregateTemplate(snapshot state.State) string {
	template := s.cfg.Template
	if template == "" {
		template = defaultAggregateTemplate
	}
	return Interpolate(template, snapshot)
}

func (s *aggregatorStep) aggregateConcat(snapshot state.State, separator string) string {
	parts := make([]string, 0, len(s.cfg.SourceKeys))
	for _, key := range s.cfg.SourceKeys {
		value, ok := lookup(snapshot, key)
		if !ok {
			continue
		}
		switch t := value.(type) {
		case string:
			parts = append(parts, t)
		case []any:
			items := make([]string, len(t))
			for i, item := range t {
				items[i] = fmt.Sprintf("%v", item)
			}
			parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(items, ", ")))
		case map[string]any:
			parts = append(parts, fmt.Sprintf("%s: %v", key, t))
		default:
			parts = append(parts, fmt.Sprintf("%v", t))
		}
	}
	return strings.Join(parts, separator)
}
