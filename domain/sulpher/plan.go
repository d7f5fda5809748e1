// Package sulpher implements the declarative graph query language: a
// Cypher-like MATCH/WHERE/RETURN subset executed with bounded BFS or DFS
// traversal over the graph overlay.
package sulpher

import "rserv/domain/document"

// Algorithm selects the traversal strategy.
type Algorithm string

const (
	AlgorithmBFS Algorithm = "BFS"
	AlgorithmDFS Algorithm = "DFS"
)

// NodePattern constrains one node position in the path.
type NodePattern struct {
	Var   string
	Type  string
	Props map[string]document.Value
}

// RelPattern constrains the edge leading into a node position. An empty
// Type matches any label.
type RelPattern struct {
	Type  string
	Props map[string]document.Value
}

// Step is one position of the path pattern together with its inbound
// relationship (unused for the first step).
type Step struct {
	Node NodePattern
	Rel  RelPattern
}

// Condition is one WHERE term: `var.prop op literal`.
type Condition struct {
	Variable string
	Property string
	Operator string
	Value    document.Value
}

// ReturnItem is one RETURN term. Exactly one form applies: a var.prop
// projection, an aggregate over a variable, or a bare variable.
type ReturnItem struct {
	Text string // original text, used as the result column key

	Var       string
	Prop      string
	Aggregate string // COUNT, SUM, AVG, MIN or MAX; empty otherwise
}

// Plan is a parsed, executable query.
type Plan struct {
	Algorithm Algorithm
	Path      []Step
	Where     []Condition
	Return    []ReturnItem
}
