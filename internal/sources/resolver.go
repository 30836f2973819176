// Package sources turns source configurations into live clients: langchaingo
// models for llm sources, resty clients for api and image sources, and
// database/sql pools for db sources. Configuration is resolved with the
// registry taking precedence over inline node config, with environment
// variable indirection for secrets (*_env keys).
package sources

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/types"
)

// Resolver resolves source references against the registry and builds
// clients from the merged configuration.
type Resolver struct {
	reg *registry.Registry
	log *slog.Logger
}

func NewResolver(reg *registry.Registry, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{reg: reg, log: log}
}

// Resolve merges a source reference with inline config. A registered source
// wins over inline keys; inline fills what the source omits. An empty
// sourceID resolves to the inline config alone.
func (r *Resolver) Resolve(kind types.SourceKind, sourceID string, inline map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(inline))
	for k, v := range inline {
		merged[k] = v
	}
	if sourceID == "" {
		return merged, nil
	}
	src, err := r.reg.Get(sourceID)
	if err != nil {
		return nil, err
	}
	if src.Kind != kind {
		return nil, errors.Errorf("source %q is kind %q, want %q", sourceID, src.Kind, kind)
	}
	for k, v := range src.Config {
		merged[k] = v
	}
	return merged, nil
}

// LLM builds a model client for a source reference or inline config.
func (r *Resolver) LLM(sourceID string, inline map[string]any) (*LLMClient, error) {
	cfg, err := r.Resolve(types.SourceLLM, sourceID, inline)
	if err != nil {
		return nil, err
	}
	return NewLLMClient(cfg, r.log)
}

// API builds an HTTP client for a source reference or inline config.
func (r *Resolver) API(sourceID string, inline map[string]any) (*APIClient, error) {
	cfg, err := r.Resolve(types.SourceAPI, sourceID, inline)
	if err != nil {
		return nil, err
	}
	return NewAPIClient(cfg, r.log)
}

// Image builds an image generation client for a source reference or inline
// config. Unlike the other kinds an empty config is fine: the client falls
// back to placeholder results.
func (r *Resolver) Image(sourceID string, inline map[string]any) (*ImageClient, error) {
	cfg, err := r.Resolve(types.SourceImage, sourceID, inline)
	if err != nil {
		return nil, err
	}
	return NewImageClient(cfg, r.log)
}

// DB builds a database handle for a source reference or inline config.
func (r *Resolver) DB(sourceID string, inline map[string]any) (*DBClient, error) {
	cfg, err := r.Resolve(types.SourceDB, sourceID, inline)
	if err != nil {
		return nil, err
	}
	return NewDBClient(cfg, r.log)
}

// configString reads a string key from a config map.
func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// configFloat reads a numeric key, accepting both float64 (JSON) and int
// (YAML or Go literals).
func configFloat(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// envOrDirect resolves a credential: the direct key wins, otherwise the
// *_env key names an environment variable to read.
func envOrDirect(cfg map[string]any, key string) string {
	if v := configString(cfg, key); v != "" {
		return v
	}
	if envName := configString(cfg, key+"_env"); envName != "" {
		return os.Getenv(envName)
	}
	return ""
}
