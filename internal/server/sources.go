package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/types"
)

const maskedValue = "***MASKED***"

// secretKeys are masked in every response; matching is by substring so
// variants like openai_api_key or db_password are covered too.
var secretKeys = []string{"api_key", "token", "connection_string", "password", "secret"}

func maskConfig(cfg map[string]any) map[string]any {
	masked := make(map[string]any, len(cfg))
	for key, value := range cfg {
		if isSecretKey(key) {
			masked[key] = maskedValue
			continue
		}
		masked[key] = value
	}
	return masked
}

func isSecretKey(key string) bool {
	lowered := strings.ToLower(key)
	if strings.HasSuffix(lowered, "_env") {
		// Env var names are indirection, not secrets.
		return false
	}
	for _, secret := range secretKeys {
		if strings.Contains(lowered, secret) {
			return true
		}
	}
	return false
}

func sourceResponse(src registry.SourceConfig) map[string]any {
	return map[string]any{
		"id":     src.ID,
		"kind":   string(src.Kind),
		"config": maskConfig(src.Config),
	}
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	sources := s.reg.List()
	listed := make(map[string]any, len(sources))
	for _, src := range sources {
		listed[src.ID] = sourceResponse(src)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": listed,
		"count":   len(listed),
	})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	src, err := s.reg.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse(src))
}

func (s *Server) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     string         `json:"id"`
		Kind   string         `json:"kind"`
		Config map[string]any `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", map[string]any{"error": err.Error()})
		return
	}
	if body.ID == "" || body.Kind == "" {
		writeError(w, http.StatusBadRequest, "source requires id and kind", nil)
		return
	}

	s.reg.Register(registry.SourceConfig{
		ID:     body.ID,
		Kind:   types.SourceKind(body.Kind),
		Config: body.Config,
	})
	s.log.Info("source registered", "source_id", body.ID, "kind", body.Kind)

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":    "registered",
		"source_id": body.ID,
		"kind":      body.Kind,
	})
}

func (s *Server) handleUnregisterSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	if !s.reg.Unregister(id) {
		writeError(w, http.StatusNotFound, "source not found: "+id, nil)
		return
	}
	s.log.Info("source unregistered", "source_id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "unregistered",
		"source_id": id,
	})
}

func (s *Server) handleClearSources(w http.ResponseWriter, _ *http.Request) {
	s.reg.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"message": "all sources have been unregistered",
	})
}

// handleTestSource probes a registered source. For api sources it issues a
// reachability request; for the other kinds a successful client build
// counts as connected.
func (s *Server) handleTestSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceID")
	src, err := s.reg.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}

	resolver := sources.NewResolver(s.reg, s.log)
	connected := false
	message := "connection successful"

	switch src.Kind {
	case types.SourceAPI:
		client, buildErr := resolver.API(id, nil)
		if buildErr == nil {
			if probeErr := client.Probe(r.Context()); probeErr == nil {
				connected = true
			} else {
				message = probeErr.Error()
			}
		} else {
			message = buildErr.Error()
		}
	case types.SourceLLM:
		_, buildErr := resolver.LLM(id, nil)
		connected = buildErr == nil
		if buildErr != nil {
			message = buildErr.Error()
		}
	case types.SourceDB:
		client, buildErr := resolver.DB(id, nil)
		if buildErr == nil {
			connected = client.Connected()
			if !connected {
				message = "no connection string configured"
			}
		} else {
			message = buildErr.Error()
		}
	case types.SourceImage:
		_, buildErr := resolver.Image(id, nil)
		connected = buildErr == nil
		if buildErr != nil {
			message = buildErr.Error()
		}
	default:
		message = "unknown source kind"
	}

	if !connected && message == "connection successful" {
		message = "connection test failed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source_id": id,
		"kind":      string(src.Kind),
		"connected": connected,
		"message":   message,
	})
}
