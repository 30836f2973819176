package graph

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// End is the terminal marker: a dispatch target meaning "execution ends
// here". On the wire it may appear as "end" or "__end__".
const End = "__end__"

const defaultVersion = "1.0.0"

// IsTerminal reports whether an edge target names the terminal marker.
func IsTerminal(id string) bool {
	switch strings.ToLower(id) {
	case "end", End:
		return true
	default:
		return false
	}
}

// GraphSpec is the declarative description of a workflow: typed nodes,
// transitions between them, rate-limit queues, external sources, and the
// entry point. It is immutable once constructed; the compiler works on a
// copy and never mutates its input.
type GraphSpec struct {
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string       `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       []NodeSpec   `json:"nodes" yaml:"nodes"`
	Edges       []EdgeSpec   `json:"edges,omitempty" yaml:"edges,omitempty"`
	Queues      []QueueSpec  `json:"queues,omitempty" yaml:"queues,omitempty"`
	Sources     []SourceSpec `json:"sources,omitempty" yaml:"sources,omitempty"`
	StartNode   string       `json:"start_node" yaml:"start_node"`
}

// NodeSpec declares one typed step. The config map travels under the wire
// key "metadata"; its semantics are owned by the step implementation and
// validated by the node type's factory at compile time.
type NodeSpec struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EdgeSpec declares a transition. To holds one id or a non-empty set of ids
// for fan-out; Condition optionally names an expression evaluated against
// the merged state.
type EdgeSpec struct {
	From      string     `json:"from" yaml:"from"`
	To        TargetList `json:"to" yaml:"to"`
	Condition string     `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// TargetList decodes from either a single id or a list of ids.
type TargetList []string

func (t *TargetList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TargetList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "edge target must be an id or a list of ids")
	}
	*t = TargetList(many)
	return nil
}

func (t TargetList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *TargetList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*t = TargetList{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return errors.Wrap(err, "edge target must be an id or a list of ids")
	}
	*t = TargetList(many)
	return nil
}

// QueueSpec declares a rate-limited hand-off between two nodes. Only its
// structure is validated here; enforcement lives outside the core.
type QueueSpec struct {
	ID        string         `json:"id" yaml:"id"`
	From      string         `json:"from" yaml:"from"`
	To        string         `json:"to" yaml:"to"`
	Bandwidth *BandwidthSpec `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
}

// BandwidthSpec caps queue throughput.
type BandwidthSpec struct {
	MaxMessagesPerSecond int `json:"max_messages_per_second,omitempty" yaml:"max_messages_per_second,omitempty"`
	MaxRequestsPerMinute int `json:"max_requests_per_minute,omitempty" yaml:"max_requests_per_minute,omitempty"`
	MaxTokensPerMinute   int `json:"max_tokens_per_minute,omitempty" yaml:"max_tokens_per_minute,omitempty"`
}

// SourceSpec declares an external-resource configuration referenced by id
// from node configs.
type SourceSpec struct {
	ID     string         `json:"id" yaml:"id"`
	Kind   string         `json:"kind" yaml:"kind"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s *GraphSpec) Clone() *GraphSpec {
	out := &GraphSpec{
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		StartNode:   s.StartNode,
	}
	for _, n := range s.Nodes {
		out.Nodes = append(out.Nodes, NodeSpec{ID: n.ID, Type: n.Type, Config: cloneMap(n.Config)})
	}
	for _, e := range s.Edges {
		to := make(TargetList, len(e.To))
		copy(to, e.To)
		out.Edges = append(out.Edges, EdgeSpec{From: e.From, To: to, Condition: e.Condition})
	}
	for _, q := range s.Queues {
		qc := QueueSpec{ID: q.ID, From: q.From, To: q.To}
		if q.Bandwidth != nil {
			bw := *q.Bandwidth
			qc.Bandwidth = &bw
		}
		out.Queues = append(out.Queues, qc)
	}
	for _, src := range s.Sources {
		out.Sources = append(out.Sources, SourceSpec{ID: src.ID, Kind: src.Kind, Config: cloneMap(src.Config)})
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// nodeIDs returns the set of declared node ids.
func (s *GraphSpec) nodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}

// ParseSpec decodes a GraphSpec document. JSON is tried first, then YAML,
// so both wire formats load through the same entry point.
func ParseSpec(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	jsonErr := json.Unmarshal(data, &spec)
	if jsonErr != nil {
		spec = GraphSpec{}
		if yamlErr := yaml.Unmarshal(data, &spec); yamlErr != nil {
			return nil, errors.Wrap(jsonErr, "parsing workflow spec")
		}
	}
	if spec.Version == "" {
		spec.Version = defaultVersion
	}
	return &spec, nil
}

// LoadSpecFile reads and decodes a spec document from disk.
func LoadSpecFile(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading spec file %s", path)
	}
	return ParseSpec(data)
}
