package graph

import (
	"log/slog"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/steps"
	"github.com/avi3tal/agentflow/internal/types"
)

// builtinFactories wires the built-in step implementations to the compiler.
func builtinFactories(reg *registry.Registry, log *slog.Logger) map[string]types.StepFactory {
	return steps.Factories(steps.Deps{
		Registry: reg,
		Resolver: sources.NewResolver(reg, log),
		Logger:   log,
	})
}
