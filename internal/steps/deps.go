// Package steps implements the built-in node behaviors: input processing,
// intent routing, model calls, image generation, read-only database queries,
// and result aggregation. Each step decodes its node config with
// mapstructure and returns only the state fields it changed.
package steps

import (
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

// Deps carries the shared collaborators every factory closes over.
type Deps struct {
	Registry *registry.Registry
	Resolver *sources.Resolver
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) resolver() *sources.Resolver {
	if d.Resolver != nil {
		return d.Resolver
	}
	return sources.NewResolver(d.Registry, d.Logger)
}

// Factories returns the step factory for every built-in node type.
func Factories(deps Deps) map[string]types.StepFactory {
	return map[string]types.StepFactory{
		string(types.NodeInput):      NewInput(deps),
		string(types.NodeRouter):     NewRouter(deps),
		string(types.NodeLLM):        NewLLM(deps),
		string(types.NodeImage):      NewImage(deps),
		string(types.NodeDB):         NewDB(deps),
		string(types.NodeAggregator): NewAggregator(deps),
	}
}

// setOutput places a step's result under its configured output key. Schema
// fields go top-level; anything else nests under the outputs map, the only
// place the merge accepts free-form keys.
func setOutput(delta state.Delta, key string, value any) {
	if _, ok := state.DefaultSchema()[key]; ok {
		delta[key] = value
		return
	}
	outputs, _ := delta[state.KeyOutputs].(map[string]any)
	if outputs == nil {
		outputs = map[string]any{}
	}
	outputs[key] = value
	delta[state.KeyOutputs] = outputs
}

// decodeConfig fills a typed config struct from the node's raw config map.
// Weak typing tolerates JSON's float64 numbers for int fields; structs use
// a ",remain" field so unrecognized keys survive without failing the decode.
func decodeConfig(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "building config decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return errors.Wrap(err, "decoding node config")
	}
	return nil
}
