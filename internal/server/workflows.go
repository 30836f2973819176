package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/avi3tal/agentflow/internal/graph"
	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type executeRequest struct {
	Workflow     json.RawMessage `json:"workflow"`
	InitialState map[string]any  `json:"initial_state"`
}

func readSpec(r *http.Request) (*graph.GraphSpec, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return graph.ParseSpec(body)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	spec, err := readSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow specification", map[string]any{"error": err.Error()})
		return
	}

	issues := graph.Validate(spec)
	if len(issues) > 0 {
		s.met.ValidationFailures.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"errors": issues,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", map[string]any{"error": err.Error()})
		return
	}
	spec, err := graph.ParseSpec(req.Workflow)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow specification", map[string]any{"error": err.Error()})
		return
	}

	if issues := graph.Validate(spec); len(issues) > 0 {
		s.met.ValidationFailures.Inc()
		writeError(w, http.StatusBadRequest, "workflow validation failed", map[string]any{"errors": issues})
		return
	}

	wf, err := graph.Compile(spec, s.reg, graph.WithLogger(s.log))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build workflow graph", map[string]any{"error": err.Error()})
		return
	}

	started := time.Now()
	res, err := wf.Run(r.Context(), req.InitialState, graph.WithTimeout(s.runTimeout))
	if err != nil {
		status := string(types.StatusFailed)
		if _, isTimeout := err.(*graph.TimeoutError); isTimeout {
			status = string(types.StatusTimedOut)
		}
		partial, _ := graph.PartialState(err)
		s.met.ObserveExecution(status, time.Since(started).Seconds(), partial.Int(state.KeyTokensUsed))
		writeError(w, http.StatusInternalServerError, "workflow execution failed", map[string]any{
			"status":      "error",
			"error":       err.Error(),
			"final_state": partial,
		})
		return
	}

	s.met.ObserveExecution(string(res.Status), res.Duration.Seconds(), res.State.Int(state.KeyTokensUsed))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"final_state":       res.State,
		"execution_time_ms": res.Duration.Milliseconds(),
		"tokens_used":       res.State.Int(state.KeyTokensUsed),
		"cost":              res.State.Float(state.KeyCost),
		"execution_path":    res.State.Strings(state.KeyExecutionPath),
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	spec, err := readSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow specification", map[string]any{"error": err.Error()})
		return
	}

	if issues := graph.Validate(spec); len(issues) > 0 {
		s.met.ValidationFailures.Inc()
		writeError(w, http.StatusBadRequest, "workflow validation failed", map[string]any{"errors": issues})
		return
	}

	workflowID := registry.NewWorkflowID()
	wf, err := graph.Compile(spec, s.reg, graph.WithLogger(s.log), graph.WithWorkflowID(workflowID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build workflow graph", map[string]any{"error": err.Error()})
		return
	}
	s.reg.CacheWorkflow(workflowID, wf)

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"workflow_id": workflowID,
		"node_count":  wf.NodeCount(),
		"edge_count":  wf.EdgeCount(),
		"start_node":  wf.EntryID(),
	})
}

func (s *Server) handleNodeTypes(w http.ResponseWriter, _ *http.Request) {
	descriptions := map[types.NodeType]string{
		types.NodeInput:      "Entry point that accepts and validates user input",
		types.NodeRouter:     "Classifies intent and directs conditional flow",
		types.NodeLLM:        "Generates text with a configured language model",
		types.NodeImage:      "Generates images from a prompt",
		types.NodeDB:         "Runs read-only database queries",
		types.NodeAggregator: "Combines branch results into the final output",
	}

	items := make([]map[string]any, 0, len(descriptions))
	for _, nt := range types.BuiltinNodeTypes() {
		items = append(items, map[string]any{
			"type":        string(nt),
			"description": descriptions[nt],
			"terminal":    nt.Terminal(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_types": items,
		"count":      len(items),
	})
}
