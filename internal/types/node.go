package types

import (
	"fmt"
	"strings"
)

// NodeType enumerates the built-in node types. The set is fixed but
// extensible: compilers may register additional factories under new names.
type NodeType string

const (
	NodeInput      NodeType = "input"
	NodeRouter     NodeType = "router"
	NodeLLM        NodeType = "llm"
	NodeImage      NodeType = "image"
	NodeDB         NodeType = "db"
	NodeAggregator NodeType = "aggregator"
)

// BuiltinNodeTypes lists the node types shipped with the engine.
func BuiltinNodeTypes() []NodeType {
	return []NodeType{NodeInput, NodeRouter, NodeLLM, NodeImage, NodeDB, NodeAggregator}
}

// ParseNodeType normalizes a node type string.
func ParseNodeType(s string) (NodeType, error) {
	nt := NodeType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range BuiltinNodeTypes() {
		if nt == known {
			return nt, nil
		}
	}
	return "", fmt.Errorf("unknown node type %q", s)
}

// Terminal reports whether the node type is inherently terminal: a node of
// this type with no outgoing edge is auto-wired to the terminal marker
// instead of being left as a dead end.
func (t NodeType) Terminal() bool {
	return t == NodeAggregator
}

// SourceKind enumerates the registered external-source kinds.
type SourceKind string

const (
	SourceLLM   SourceKind = "llm"
	SourceImage SourceKind = "image"
	SourceDB    SourceKind = "db"
	SourceAPI   SourceKind = "api"
)
