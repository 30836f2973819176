package graph

import (
	"fmt"
	"sort"

	"github.com/avi3tal/agentflow/internal/types"
)

// Issue is one structural or semantic defect in a GraphSpec. Validation
// collects issues, it never throws: callers must check the returned list.
type Issue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Issue type codes, stable across the wire.
const (
	IssueEmptyNodes         = "empty_nodes"
	IssueDuplicateNodeID    = "duplicate_node_id"
	IssueDuplicateSourceID  = "duplicate_source_id"
	IssueDuplicateQueueID   = "duplicate_queue_id"
	IssueStartNodeMissing   = "start_node_missing"
	IssueStartNodeInvalid   = "start_node_invalid"
	IssueEdgeSourceInvalid  = "edge_source_invalid"
	IssueEdgeTargetInvalid  = "edge_target_invalid"
	IssueQueueSourceInvalid = "queue_source_invalid"
	IssueQueueTargetInvalid = "queue_target_invalid"
	IssueOrphanedNode       = "orphaned_node"
	IssueCycleDetected      = "cycle_detected"
	IssueNodeTypeInvalid    = "node_type_invalid"
	IssueSourceMissing      = "source_missing"
	IssueMetadataMissing    = "metadata_missing"
)

type validateConfig struct {
	cycleCheck bool
}

// ValidateOption tweaks validation behavior.
type ValidateOption func(*validateConfig)

// WithCycleCheck enables cycle detection. Off by default: whether loops are
// a defect or an intentionally supported construct is an open policy
// question, so enabling this is an explicit caller decision.
func WithCycleCheck() ValidateOption {
	return func(c *validateConfig) {
		c.cycleCheck = true
	}
}

// Validate runs every structural and semantic check against the spec and
// returns the complete, ordered issue list. An empty list means the spec is
// ready to compile.
func Validate(spec *GraphSpec, opts ...ValidateOption) []Issue {
	var cfg validateConfig
	for _, o := range opts {
		o(&cfg)
	}

	issues := []Issue{}
	if len(spec.Nodes) == 0 {
		issues = append(issues, Issue{
			Type:    IssueEmptyNodes,
			Message: "workflow declares no nodes",
			Field:   "nodes",
		})
	}

	nodeIDs := spec.nodeIDs()
	sourceIDs := make(map[string]struct{}, len(spec.Sources))
	for _, src := range spec.Sources {
		sourceIDs[src.ID] = struct{}{}
	}

	issues = append(issues, checkDuplicates(spec)...)
	issues = append(issues, checkStartNode(spec, nodeIDs)...)
	issues = append(issues, checkEdges(spec, nodeIDs)...)
	issues = append(issues, checkQueues(spec, nodeIDs)...)
	issues = append(issues, checkNodeConfigs(spec, sourceIDs)...)
	issues = append(issues, checkSourceConfigs(spec)...)
	issues = append(issues, checkOrphans(spec, nodeIDs)...)
	if cfg.cycleCheck {
		issues = append(issues, detectCycle(spec)...)
	}
	return issues
}

// checkDuplicates reports one issue per extra occurrence of an id.
func checkDuplicates(spec *GraphSpec) []Issue {
	var issues []Issue

	seen := map[string]struct{}{}
	for _, n := range spec.Nodes {
		if _, dup := seen[n.ID]; dup {
			issues = append(issues, Issue{
				Type:    IssueDuplicateNodeID,
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
				NodeID:  n.ID,
			})
		}
		seen[n.ID] = struct{}{}
	}

	seen = map[string]struct{}{}
	for _, src := range spec.Sources {
		if _, dup := seen[src.ID]; dup {
			issues = append(issues, Issue{
				Type:    IssueDuplicateSourceID,
				Message: fmt.Sprintf("duplicate source id %q", src.ID),
				Field:   "sources",
			})
		}
		seen[src.ID] = struct{}{}
	}

	seen = map[string]struct{}{}
	for _, q := range spec.Queues {
		if _, dup := seen[q.ID]; dup {
			issues = append(issues, Issue{
				Type:    IssueDuplicateQueueID,
				Message: fmt.Sprintf("duplicate queue id %q", q.ID),
				Field:   "queues",
			})
		}
		seen[q.ID] = struct{}{}
	}
	return issues
}

func checkStartNode(spec *GraphSpec, nodeIDs map[string]struct{}) []Issue {
	if spec.StartNode == "" {
		return []Issue{{
			Type:    IssueStartNodeMissing,
			Message: "start_node is required",
			Field:   "start_node",
		}}
	}
	if _, ok := nodeIDs[spec.StartNode]; !ok {
		return []Issue{{
			Type:    IssueStartNodeInvalid,
			Message: fmt.Sprintf("start_node %q does not exist in nodes", spec.StartNode),
			Field:   "start_node",
			NodeID:  spec.StartNode,
		}}
	}
	return nil
}

func checkEdges(spec *GraphSpec, nodeIDs map[string]struct{}) []Issue {
	var issues []Issue
	for i, edge := range spec.Edges {
		if _, ok := nodeIDs[edge.From]; !ok {
			issues = append(issues, Issue{
				Type:    IssueEdgeSourceInvalid,
				Message: fmt.Sprintf("edge source %q does not exist in nodes", edge.From),
				Field:   fmt.Sprintf("edges[%d].from", i),
				NodeID:  edge.From,
			})
		}
		for _, target := range edge.To {
			if IsTerminal(target) {
				continue
			}
			if _, ok := nodeIDs[target]; !ok {
				issues = append(issues, Issue{
					Type:    IssueEdgeTargetInvalid,
					Message: fmt.Sprintf("edge target %q does not exist in nodes", target),
					Field:   fmt.Sprintf("edges[%d].to", i),
					NodeID:  target,
				})
			}
		}
	}
	return issues
}

func checkQueues(spec *GraphSpec, nodeIDs map[string]struct{}) []Issue {
	var issues []Issue
	for i, q := range spec.Queues {
		if _, ok := nodeIDs[q.From]; !ok {
			issues = append(issues, Issue{
				Type:    IssueQueueSourceInvalid,
				Message: fmt.Sprintf("queue source %q does not exist in nodes", q.From),
				Field:   fmt.Sprintf("queues[%d].from", i),
				NodeID:  q.From,
			})
		}
		if _, ok := nodeIDs[q.To]; !ok && !IsTerminal(q.To) {
			issues = append(issues, Issue{
				Type:    IssueQueueTargetInvalid,
				Message: fmt.Sprintf("queue target %q does not exist in nodes", q.To),
				Field:   fmt.Sprintf("queues[%d].to", i),
				NodeID:  q.To,
			})
		}
	}
	return issues
}

// checkNodeConfigs applies the per-node-type required-config rules.
func checkNodeConfigs(spec *GraphSpec, sourceIDs map[string]struct{}) []Issue {
	var issues []Issue
	for _, node := range spec.Nodes {
		nt, err := types.ParseNodeType(node.Type)
		if err != nil {
			issues = append(issues, Issue{
				Type:    IssueNodeTypeInvalid,
				Message: err.Error(),
				NodeID:  node.ID,
				Field:   "type",
			})
			continue
		}

		cfg := node.Config
		switch nt {
		case types.NodeLLM:
			issues = append(issues, checkSourceRef(node, cfg, sourceIDs, "llm")...)
			if !hasConfig(cfg, "prompt") && !hasConfig(cfg, "prompt_template") {
				issues = append(issues, Issue{
					Type:    IssueMetadataMissing,
					Message: "llm node requires 'prompt' or 'prompt_template' in metadata",
					NodeID:  node.ID,
					Field:   "metadata.prompt",
				})
			}
		case types.NodeImage:
			issues = append(issues, checkSourceRef(node, cfg, sourceIDs, "image")...)
		case types.NodeDB:
			issues = append(issues, checkSourceRef(node, cfg, sourceIDs, "db")...)
			if !hasConfig(cfg, "query") && !hasConfig(cfg, "query_template") {
				issues = append(issues, Issue{
					Type:    IssueMetadataMissing,
					Message: "db node requires 'query' in metadata",
					NodeID:  node.ID,
					Field:   "metadata.query",
				})
			}
		case types.NodeRouter:
			if !hasConfig(cfg, "routes") && !hasConfig(cfg, "strategy") {
				issues = append(issues, Issue{
					Type:    IssueMetadataMissing,
					Message: "router node requires 'routes' or 'strategy' in metadata",
					NodeID:  node.ID,
					Field:   "metadata.routes",
				})
			}
		}
	}
	return issues
}

// checkSourceRef verifies a node's source_id, when present, resolves among
// the spec's sources. Sources registered outside the spec are resolved at
// compile time instead.
func checkSourceRef(node NodeSpec, cfg map[string]any, sourceIDs map[string]struct{}, kind string) []Issue {
	ref, _ := cfg["source_id"].(string)
	if ref == "" {
		return nil
	}
	if _, ok := sourceIDs[ref]; !ok {
		return []Issue{{
			Type:    IssueSourceMissing,
			Message: fmt.Sprintf("%s node references non-existent source %q", kind, ref),
			NodeID:  node.ID,
			Field:   "metadata.source_id",
		}}
	}
	return nil
}

func checkSourceConfigs(spec *GraphSpec) []Issue {
	var issues []Issue
	for _, src := range spec.Sources {
		cfg := src.Config
		switch types.SourceKind(src.Kind) {
		case types.SourceLLM:
			if !hasConfig(cfg, "model") && !hasConfig(cfg, "model_name") {
				issues = append(issues, Issue{
					Type:    IssueMetadataMissing,
					Message: fmt.Sprintf("llm source %q requires 'model' in config", src.ID),
					Field:   fmt.Sprintf("sources.%s.config.model", src.ID),
				})
			}
		case types.SourceDB:
			if !hasConfig(cfg, "connection_string") && !hasConfig(cfg, "connection_string_env") {
				issues = append(issues, Issue{
					Type:    IssueMetadataMissing,
					Message: fmt.Sprintf("db source %q requires 'connection_string_env' in config", src.ID),
					Field:   fmt.Sprintf("sources.%s.config.connection_string_env", src.ID),
				})
			}
		}
	}
	return issues
}

func hasConfig(cfg map[string]any, key string) bool {
	v, ok := cfg[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

// checkOrphans reports nodes with no incoming edge or queue. Only missing
// incoming edges are flagged; dead-end outgoing gaps are resolved (or left)
// by the compiler.
func checkOrphans(spec *GraphSpec, nodeIDs map[string]struct{}) []Issue {
	incoming := map[string]struct{}{spec.StartNode: {}}
	for _, edge := range spec.Edges {
		for _, target := range edge.To {
			incoming[target] = struct{}{}
		}
	}
	for _, q := range spec.Queues {
		incoming[q.To] = struct{}{}
	}

	var issues []Issue
	for _, node := range spec.Nodes {
		if _, ok := incoming[node.ID]; !ok {
			issues = append(issues, Issue{
				Type:    IssueOrphanedNode,
				Message: fmt.Sprintf("node %q has no incoming edges and is not reachable", node.ID),
				NodeID:  node.ID,
			})
		}
	}
	return issues
}

// detectCycle runs a three-color depth-first search and reports the first
// cycle found as a node-id path. Traversal order is deterministic.
func detectCycle(spec *GraphSpec) []Issue {
	adjacency := make(map[string][]string, len(spec.Nodes))
	var order []string
	for _, n := range spec.Nodes {
		adjacency[n.ID] = nil
		order = append(order, n.ID)
	}
	for _, edge := range spec.Edges {
		for _, target := range edge.To {
			if IsTerminal(target) {
				continue
			}
			adjacency[edge.From] = append(adjacency[edge.From], target)
		}
	}
	for id := range adjacency {
		sort.Strings(adjacency[id])
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(order))

	var path []string
	var walk func(id string) []string
	walk = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				for i, p := range path {
					if p == next {
						return append(append([]string{}, path[i:]...), next)
					}
				}
			case white:
				if cycle := walk(next); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range order {
		if color[id] != white {
			continue
		}
		if cycle := walk(id); cycle != nil {
			return []Issue{{
				Type:    IssueCycleDetected,
				Message: fmt.Sprintf("cycle detected: %s", joinPath(cycle)),
				NodeID:  cycle[0],
			}}
		}
	}
	return nil
}

func joinPath(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}
