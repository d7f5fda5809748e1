package graph

import (
	"sort"

	"rserv/domain/document"
)

// Direction filters edge sets for degree and relationship listings.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
	DirectionAll Direction = "all"
)

// NodeInfo is a node rendered for API responses.
type NodeInfo struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Properties document.Document `json:"properties"`
}

// EdgeInfo is a forward edge rendered for API responses.
type EdgeInfo struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Statistics summarises the overlay.
type Statistics struct {
	NodeCount    int     `json:"node_count"`
	EdgeCount    int     `json:"edge_count"`
	AvgOutDegree float64 `json:"avg_out_degree"`
}

// Subgraph is the k-hop neighbourhood induced by a node.
type Subgraph struct {
	Nodes         []NodeInfo `json:"nodes"`
	Relationships []EdgeInfo `json:"relationships"`
}

func nodeInfo(node *Node) NodeInfo {
	props := node.Properties
	if props == nil {
		props = document.Document{}
	}
	return NodeInfo{ID: node.ID, Type: node.Type, Properties: props}
}

// SearchNodes returns nodes whose properties equal every given constraint,
// in insertion order.
func (s *Snapshot) SearchNodes(props map[string]document.Value) []NodeInfo {
	var out []NodeInfo
	for _, nodeID := range s.overlay.order {
		node := s.overlay.nodes[nodeID]
		if nodeMatchesProps(node, props) {
			out = append(out, nodeInfo(node))
		}
	}
	return out
}

func nodeMatchesProps(node *Node, props map[string]document.Value) bool {
	for key, want := range props {
		got, ok := node.Properties[key]
		if !ok || !document.Equals(got, want) {
			return false
		}
	}
	return true
}

// ShortestPath runs a bounded breadth-first search over all stored edges
// (forward and companion reverse, so paths are effectively undirected) and
// returns the node id sequence, or false when no path exists within maxDepth
// hops.
func (s *Snapshot) ShortestPath(start, end string, maxDepth int) ([]string, bool) {
	if _, ok := s.overlay.nodes[start]; !ok {
		return nil, false
	}
	if start == end {
		return []string{start}, true
	}

	parent := map[string]string{start: ""}
	frontier := []string{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, nodeID := range frontier {
			for _, edge := range s.overlay.nodes[nodeID].Outgoing {
				if _, seen := parent[edge.Target]; seen {
					continue
				}
				parent[edge.Target] = nodeID
				if edge.Target == end {
					return tracePath(parent, start, end), true
				}
				next = append(next, edge.Target)
			}
		}
		frontier = next
	}
	return nil, false
}

func tracePath(parent map[string]string, start, end string) []string {
	var path []string
	for nodeID := end; nodeID != ""; nodeID = parent[nodeID] {
		path = append(path, nodeID)
		if nodeID == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathExists reports reachability within maxDepth hops.
func (s *Snapshot) PathExists(start, end string, maxDepth int) bool {
	_, ok := s.ShortestPath(start, end, maxDepth)
	return ok
}

// CommonNeighbors intersects the direct neighbourhoods of two nodes.
func (s *Snapshot) CommonNeighbors(a, b string) []NodeInfo {
	neighborsA := s.neighborSet(a)
	var out []NodeInfo
	seen := make(map[string]struct{})
	for _, edge := range s.Outgoing(b) {
		if _, ok := neighborsA[edge.Target]; !ok {
			continue
		}
		if _, dup := seen[edge.Target]; dup {
			continue
		}
		seen[edge.Target] = struct{}{}
		if node, ok := s.overlay.nodes[edge.Target]; ok {
			out = append(out, nodeInfo(node))
		}
	}
	return out
}

func (s *Snapshot) neighborSet(nodeID string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, edge := range s.Outgoing(nodeID) {
		set[edge.Target] = struct{}{}
	}
	return set
}

// Degree counts a node's edges. Out counts forward edges, in counts the
// stored companion edges, all counts both.
func (s *Snapshot) Degree(nodeID string, direction Direction) int {
	count := 0
	for _, edge := range s.Outgoing(nodeID) {
		switch direction {
		case DirectionIn:
			if IsReverse(edge.Label) {
				count++
			}
		case DirectionOut:
			if !IsReverse(edge.Label) {
				count++
			}
		default:
			count++
		}
	}
	return count
}

// RelationshipTypes lists the distinct forward labels incident to a node in
// the given direction.
func (s *Snapshot) RelationshipTypes(nodeID string, direction Direction) []string {
	seen := make(map[string]struct{})
	for _, edge := range s.Outgoing(nodeID) {
		reverse := IsReverse(edge.Label)
		if direction == DirectionIn && !reverse {
			continue
		}
		if direction == DirectionOut && reverse {
			continue
		}
		seen[ForwardLabel(edge.Label)] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for label := range seen {
		types = append(types, label)
	}
	sort.Strings(types)
	return types
}

// IncomingEdges lists edges pointing at the node, reconstructed from the
// stored companion edges.
func (s *Snapshot) IncomingEdges(nodeID string) []EdgeInfo {
	var out []EdgeInfo
	for _, edge := range s.Outgoing(nodeID) {
		if IsReverse(edge.Label) {
			out = append(out, EdgeInfo{
				Source: edge.Target,
				Target: nodeID,
				Type:   ForwardLabel(edge.Label),
			})
		}
	}
	return out
}

// OutgoingEdges lists the node's forward edges.
func (s *Snapshot) OutgoingEdges(nodeID string) []EdgeInfo {
	var out []EdgeInfo
	for _, edge := range s.Outgoing(nodeID) {
		if !IsReverse(edge.Label) {
			out = append(out, EdgeInfo{
				Source: nodeID,
				Target: edge.Target,
				Type:   edge.Label,
			})
		}
	}
	return out
}

// kHopNodes collects all nodes reachable within depth hops, excluding the
// start node.
func (s *Snapshot) kHopNodes(start string, depth int) []string {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	var collected []string

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, nodeID := range frontier {
			for _, edge := range s.Outgoing(nodeID) {
				if _, seen := visited[edge.Target]; seen {
					continue
				}
				visited[edge.Target] = struct{}{}
				collected = append(collected, edge.Target)
				next = append(next, edge.Target)
			}
		}
		frontier = next
	}
	return collected
}

// NeighborhoodAggregate computes count, sum or avg of a property over the
// k-hop neighbourhood. Non-numeric and missing values are skipped; avg of
// nothing is a nil result.
func (s *Snapshot) NeighborhoodAggregate(start string, depth int, property, aggregation string) interface{} {
	nodeIDs := s.kHopNodes(start, depth)

	count := 0
	sum := 0.0
	numeric := 0
	for _, nodeID := range nodeIDs {
		node, ok := s.overlay.nodes[nodeID]
		if !ok {
			continue
		}
		val, ok := node.Properties[property]
		if !ok || val.IsNull() {
			continue
		}
		count++
		if f, ok := val.Numeric(); ok {
			sum += f
			numeric++
		}
	}

	switch aggregation {
	case "count":
		return count
	case "sum":
		return sum
	case "avg":
		if numeric == 0 {
			return nil
		}
		return sum / float64(numeric)
	}
	return nil
}

// Statistics counts nodes and forward edges and derives the average
// out-degree.
func (s *Snapshot) Statistics() Statistics {
	stats := Statistics{NodeCount: len(s.overlay.nodes)}
	for _, node := range s.overlay.nodes {
		for _, edge := range node.Outgoing {
			if !IsReverse(edge.Label) {
				stats.EdgeCount++
			}
		}
	}
	if stats.NodeCount > 0 {
		stats.AvgOutDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
	}
	return stats
}

// SubgraphAround induces the subgraph of all nodes within depth hops of the
// centre, with the forward edges between them.
func (s *Snapshot) SubgraphAround(center string, depth int) Subgraph {
	node, ok := s.overlay.nodes[center]
	if !ok {
		return Subgraph{}
	}

	included := map[string]struct{}{center: {}}
	ordered := []string{center}
	for _, nodeID := range s.kHopNodes(center, depth) {
		included[nodeID] = struct{}{}
		ordered = append(ordered, nodeID)
	}

	sub := Subgraph{Nodes: []NodeInfo{nodeInfo(node)}}
	for _, nodeID := range ordered[1:] {
		if n, ok := s.overlay.nodes[nodeID]; ok {
			sub.Nodes = append(sub.Nodes, nodeInfo(n))
		}
	}
	for _, nodeID := range ordered {
		for _, edge := range s.Outgoing(nodeID) {
			if IsReverse(edge.Label) {
				continue
			}
			if _, ok := included[edge.Target]; ok {
				sub.Relationships = append(sub.Relationships, EdgeInfo{
					Source: nodeID,
					Target: edge.Target,
					Type:   edge.Label,
				})
			}
		}
	}
	return sub
}
