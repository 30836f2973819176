package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avi3tal/agentflow/internal/types"
)

// Mermaid renders the spec as a Mermaid flowchart. Conditional edges use
// dotted arrows labeled with the routing intent; terminal nodes link to a
// synthetic end marker.
func Mermaid(spec *GraphSpec) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	hasTerminal := false
	for _, n := range spec.Nodes {
		var label string
		if n.Type != "" {
			label = fmt.Sprintf("%s[\"%s<br/>(%s)\"]", n.ID, n.ID, n.Type)
		} else {
			label = fmt.Sprintf("%s[\"%s\"]", n.ID, n.ID)
		}
		b.WriteString("    " + label + "\n")
	}

	outgoing := make(map[string]bool, len(spec.Nodes))
	for _, e := range spec.Edges {
		for _, target := range e.To {
			outgoing[e.From] = true
			if IsTerminal(target) {
				hasTerminal = true
				b.WriteString(fmt.Sprintf("    %s --> __end__\n", e.From))
				continue
			}
			if e.Condition != "" || len(e.To) > 1 {
				b.WriteString(fmt.Sprintf("    %s -.->|%s| %s\n", e.From, conditionLabel(e.Condition), target))
			} else {
				b.WriteString(fmt.Sprintf("    %s --> %s\n", e.From, target))
			}
		}
	}
	for _, q := range spec.Queues {
		outgoing[q.From] = true
		if IsTerminal(q.To) {
			hasTerminal = true
			b.WriteString(fmt.Sprintf("    %s --> __end__\n", q.From))
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", q.From, q.To))
	}

	// Aggregators with no outgoing edges terminate implicitly.
	dangling := make([]string, 0)
	for _, n := range spec.Nodes {
		nt, err := types.ParseNodeType(n.Type)
		if err == nil && !outgoing[n.ID] && nt.Terminal() {
			dangling = append(dangling, n.ID)
		}
	}
	sort.Strings(dangling)
	for _, id := range dangling {
		hasTerminal = true
		b.WriteString(fmt.Sprintf("    %s --> __end__\n", id))
	}

	if hasTerminal {
		b.WriteString("    __end__((END))\n")
	}
	return b.String()
}

func conditionLabel(condition string) string {
	if condition == "" {
		return "intent"
	}
	return condition
}
