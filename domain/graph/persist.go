package graph

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// persistLocked rewrites both dump files. Requires the exclusive lock.
// Persistence failures are logged but never fail the originating write; the
// overlay is rebuilt from the store at startup anyway.
func (o *Overlay) persistLocked() {
	if !o.indexed || o.adjacencyPath == "" {
		return
	}
	if err := o.dumpAdjacencyLocked(); err != nil {
		o.logger.Error("Failed to persist adjacency list",
			zap.String("path", o.adjacencyPath),
			zap.Error(err),
		)
	}
	if err := o.dumpIndexLocked(); err != nil {
		o.logger.Error("Failed to persist graph index",
			zap.String("path", o.indexPath),
			zap.Error(err),
		)
	}
}

// dumpAdjacencyLocked writes one "<node-id>:<space-separated-neighbors>"
// line per node in insertion order.
func (o *Overlay) dumpAdjacencyLocked() error {
	f, err := os.Create(o.adjacencyPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, nodeID := range o.order {
		node := o.nodes[nodeID]
		targets := make([]string, 0, len(node.Outgoing))
		for _, edge := range node.Outgoing {
			targets = append(targets, edge.Target)
		}
		if _, err := w.WriteString(nodeID + ":" + strings.Join(targets, " ") + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

// dumpIndexLocked writes the inverted index as a single JSON object mapping
// index key to a sorted array of node ids.
func (o *Overlay) dumpIndexLocked() error {
	out := make(map[string][]string, len(o.index))
	for key, set := range o.index {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[key] = ids
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(o.indexPath, data, 0o644)
}

// Load restores the overlay from the dump files. Loading is tolerant: node
// types default to the entity prefix of the node id, edge labels are unknown,
// and missing files are fine. A startup Rebuild supersedes whatever was
// loaded here.
func (o *Overlay) Load() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loadAdjacencyLocked()
	o.loadIndexLocked()
}

func (o *Overlay) loadAdjacencyLocked() {
	if o.adjacencyPath == "" {
		return
	}
	f, err := os.Open(o.adjacencyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Warn("Could not read adjacency list", zap.Error(err))
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// The node id itself contains a colon; split on the last one.
		cut := strings.LastIndex(line, ":")
		if cut <= 0 {
			continue
		}
		nodeID := strings.TrimSpace(line[:cut])
		entity, _, err := nodeEntity(nodeID)
		if err != nil {
			continue
		}
		node := o.ensureLocked(nodeID, entity)
		for _, target := range strings.Fields(line[cut+1:]) {
			targetEntity, _, err := nodeEntity(target)
			if err != nil {
				continue
			}
			o.ensureLocked(target, targetEntity)
			node.Outgoing = append(node.Outgoing, Edge{Target: target})
		}
	}
	if err := scanner.Err(); err != nil {
		o.logger.Warn("Error while reading adjacency list", zap.Error(err))
	}
}

func (o *Overlay) loadIndexLocked() {
	if !o.indexed || o.indexPath == "" {
		return
	}
	data, err := os.ReadFile(o.indexPath)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Warn("Could not read graph index", zap.Error(err))
		}
		return
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		o.logger.Warn("Discarding malformed graph index", zap.Error(err))
		return
	}
	for key, ids := range raw {
		for _, id := range ids {
			o.indexAddLocked(key, id)
		}
	}
}

// nodeEntity extracts the entity prefix of "<entity>:<id>".
func nodeEntity(nodeID string) (string, string, error) {
	entity, id, ok := strings.Cut(nodeID, ":")
	if !ok || entity == "" || id == "" {
		return "", "", errMalformedNodeID
	}
	return entity, id, nil
}

var errMalformedNodeID = errors.New("malformed node id")
