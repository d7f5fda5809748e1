package file

import (
	"go.uber.org/zap"

	"rserv/domain/document"
)

// CascadeDelete deletes (entity, id) and, transitively, every document that
// holds a REF to a deleted document. A worklist drives the scan; the deleted
// set bounds total work and keeps reference cycles from re-enqueueing.
// Returns the deleted node identifiers in deletion order.
func (s *Store) CascadeDelete(entity string, id int64) ([]string, error) {
	type target struct {
		entity string
		id     int64
	}

	if err := s.Delete(entity, id); err != nil {
		return nil, err
	}

	deleted := map[string]struct{}{document.NodeID(entity, id): {}}
	order := []string{document.NodeID(entity, id)}
	worklist := []target{{entity, id}}

	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		entities, err := s.Entities()
		if err != nil {
			return order, err
		}
		for _, other := range entities {
			docs, err := s.List(other)
			if err != nil {
				return order, err
			}
			for _, doc := range docs {
				docID, ok := doc.ID()
				if !ok {
					continue
				}
				nodeID := document.NodeID(other, docID)
				if _, done := deleted[nodeID]; done {
					continue
				}
				if !refersTo(doc, current.entity, current.id) {
					continue
				}
				if err := s.Delete(other, docID); err != nil {
					s.logger.Warn("Cascade target vanished mid-delete",
						zap.String("node_id", nodeID),
						zap.Error(err),
					)
					continue
				}
				deleted[nodeID] = struct{}{}
				order = append(order, nodeID)
				worklist = append(worklist, target{other, docID})
			}
		}
	}
	return order, nil
}

func refersTo(doc document.Document, entity string, id int64) bool {
	for _, rf := range doc.Refs() {
		if rf.Ref.Entity == entity && rf.Ref.ID == id {
			return true
		}
	}
	return false
}
