// Package graph maintains the property-graph overlay derived from document
// REF fields: an in-memory adjacency structure, an inverted index for
// start-node lookup, and their on-disk dumps.
package graph

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"rserv/domain/document"
)

// ReverseLabelPrefix marks the companion edge stored for every forward edge.
const ReverseLabelPrefix = "reverse_"

// Edge is one directed, labelled edge.
type Edge struct {
	Target string
	Label  string
}

// Node is one graph node. Properties mirror the backing document.
type Node struct {
	ID         string
	Type       string
	Properties document.Document
	Outgoing   []Edge // insertion-ordered
}

// Overlay is the shared graph state. A single read/write mutex guards the
// adjacency map, the inverted index and the on-disk dumps; persistence
// happens while the exclusive lock is held.
type Overlay struct {
	mu      sync.RWMutex
	indexed bool

	nodes map[string]*Node
	order []string // node ids in insertion order, for deterministic scans

	index map[string]map[string]struct{}

	adjacencyPath string
	indexPath     string

	logger *zap.Logger
}

// NewOverlay creates an overlay. indexed enables the inverted index and the
// two dump files; with empty paths nothing is persisted.
func NewOverlay(indexed bool, adjacencyPath, indexPath string, logger *zap.Logger) *Overlay {
	return &Overlay{
		indexed:       indexed,
		nodes:         make(map[string]*Node),
		index:         make(map[string]map[string]struct{}),
		adjacencyPath: adjacencyPath,
		indexPath:     indexPath,
		logger:        logger,
	}
}

// Indexed reports whether the inverted index is maintained.
func (o *Overlay) Indexed() bool {
	return o.indexed
}

// UpdateDocument mirrors a document write into the overlay: the edges the
// node's previous document derived are detached, forward and reverse edges
// are re-derived from the new REF fields, the index entries are refreshed,
// and both dump files are rewritten. Edges other documents derive stay: the
// overlay always reflects the union of REFs across every stored document.
func (o *Overlay) UpdateDocument(entity string, id int64, doc document.Document) {
	nodeID := document.NodeID(entity, id)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.detachRefsLocked(nodeID)
	o.unindexLocked(nodeID)

	node := o.ensureLocked(nodeID, entity)
	node.Properties = doc

	for _, rf := range doc.Refs() {
		targetID := document.NodeID(rf.Ref.Entity, rf.Ref.ID)
		target := o.ensureLocked(targetID, rf.Ref.Entity)
		node.Outgoing = append(node.Outgoing, Edge{Target: targetID, Label: rf.Field})
		target.Outgoing = append(target.Outgoing, Edge{Target: nodeID, Label: ReverseLabelPrefix + rf.Field})
	}

	if o.indexed {
		o.indexAddLocked(entity, nodeID)
		for _, rf := range doc.Refs() {
			o.indexAddLocked(rf.Ref.Entity, nodeID)
			o.indexAddLocked("relationship:"+rf.Field, nodeID)
		}
	}

	o.persistLocked()
}

// RemoveDocument removes a node and every edge or index entry involving it.
func (o *Overlay) RemoveDocument(entity string, id int64) {
	nodeID := document.NodeID(entity, id)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.removeLocked(nodeID)
	o.persistLocked()
}

// ensureLocked returns the node, creating a placeholder when an edge points
// at a node that has not been written yet.
func (o *Overlay) ensureLocked(nodeID, nodeType string) *Node {
	if node, ok := o.nodes[nodeID]; ok {
		return node
	}
	node := &Node{ID: nodeID, Type: nodeType}
	o.nodes[nodeID] = node
	o.order = append(o.order, nodeID)
	return node
}

// detachRefsLocked removes the edges derived from the node's own document:
// its forward edges plus their reverse companions on the targets. The node's
// stored companions and incoming forward edges belong to other documents and
// stay.
func (o *Overlay) detachRefsLocked(nodeID string) {
	node, ok := o.nodes[nodeID]
	if !ok {
		return
	}
	kept := node.Outgoing[:0]
	for _, edge := range node.Outgoing {
		if IsReverse(edge.Label) {
			kept = append(kept, edge)
			continue
		}
		if target, ok := o.nodes[edge.Target]; ok {
			companion := Edge{Target: nodeID, Label: ReverseLabelPrefix + edge.Label}
			targetKept := target.Outgoing[:0]
			for _, te := range target.Outgoing {
				if te != companion {
					targetKept = append(targetKept, te)
				}
			}
			target.Outgoing = targetKept
		}
	}
	node.Outgoing = kept
}

// removeLocked detaches nodeID completely: incoming edges, the node itself,
// and all index membership. Only deletion uses this.
func (o *Overlay) removeLocked(nodeID string) {
	for _, other := range o.nodes {
		kept := other.Outgoing[:0]
		for _, edge := range other.Outgoing {
			if edge.Target != nodeID {
				kept = append(kept, edge)
			}
		}
		other.Outgoing = kept
	}

	if _, ok := o.nodes[nodeID]; ok {
		delete(o.nodes, nodeID)
		for i, id := range o.order {
			if id == nodeID {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}

	o.unindexLocked(nodeID)
}

func (o *Overlay) unindexLocked(nodeID string) {
	for key, set := range o.index {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(o.index, key)
		}
	}
}

func (o *Overlay) indexAddLocked(key, nodeID string) {
	set, ok := o.index[key]
	if !ok {
		set = make(map[string]struct{})
		o.index[key] = set
	}
	set[nodeID] = struct{}{}
}

// Rebuild repopulates the overlay from stored documents, then persists once.
// Called at startup in indexed mode; the dumps on disk are best-effort and a
// crash can leave them stale.
func (o *Overlay) Rebuild(docs map[string][]document.Document) {
	o.mu.Lock()
	o.nodes = make(map[string]*Node)
	o.order = nil
	o.index = make(map[string]map[string]struct{})
	o.mu.Unlock()

	entities := make([]string, 0, len(docs))
	for entity := range docs {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		for _, doc := range docs[entity] {
			id, ok := doc.ID()
			if !ok {
				continue
			}
			o.UpdateDocument(entity, id, doc)
		}
	}
}

// Snapshot acquires the shared lock for a consistent read view. The caller
// must Release it; traversals hold it for their whole run.
func (o *Overlay) Snapshot() *Snapshot {
	o.mu.RLock()
	return &Snapshot{overlay: o}
}

// Snapshot is a read view over the overlay under the shared lock.
type Snapshot struct {
	overlay *Overlay
}

// Release drops the shared lock.
func (s *Snapshot) Release() {
	s.overlay.mu.RUnlock()
}

// Node returns a node by id.
func (s *Snapshot) Node(nodeID string) (*Node, bool) {
	node, ok := s.overlay.nodes[nodeID]
	return node, ok
}

// NodeIDs lists all node ids in insertion order.
func (s *Snapshot) NodeIDs() []string {
	ids := make([]string, len(s.overlay.order))
	copy(ids, s.overlay.order)
	return ids
}

// Indexed reports whether index-assisted lookup is available.
func (s *Snapshot) Indexed() bool {
	return s.overlay.indexed
}

// IndexSet returns the node ids tagged with the given index key.
func (s *Snapshot) IndexSet(key string) map[string]struct{} {
	return s.overlay.index[key]
}

// Outgoing returns the insertion-ordered edges of a node, nil when the node
// is unknown.
func (s *Snapshot) Outgoing(nodeID string) []Edge {
	if node, ok := s.overlay.nodes[nodeID]; ok {
		return node.Outgoing
	}
	return nil
}

// IsReverse reports whether an edge label is a stored companion edge.
func IsReverse(label string) bool {
	return strings.HasPrefix(label, ReverseLabelPrefix)
}

// ForwardLabel strips the companion prefix from a reverse edge label.
func ForwardLabel(label string) string {
	return strings.TrimPrefix(label, ReverseLabelPrefix)
}
