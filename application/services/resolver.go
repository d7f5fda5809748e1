package services

import (
	"rserv/domain/document"
)

// Resolve expands REF values in the named fields by inlining the referenced
// document, recursing through the same field set up to maxDepth hops. A REF
// whose target is missing stays in place. Cycles are bounded by the depth
// limit alone.
func (s *DocumentService) Resolve(doc document.Document, fields []string, maxDepth int) document.Document {
	if maxDepth <= 0 || len(fields) == 0 {
		return doc
	}

	fieldSet := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldSet[f] = struct{}{}
	}
	return s.resolve(doc, fieldSet, maxDepth, 0)
}

func (s *DocumentService) resolve(doc document.Document, fields map[string]struct{}, maxDepth, depth int) document.Document {
	if depth >= maxDepth {
		return doc
	}

	out := doc.Clone()
	for field := range fields {
		val, ok := out[field]
		if !ok {
			continue
		}
		ref, ok := val.Ref()
		if !ok {
			continue
		}
		target, err := s.store.Get(ref.Entity, ref.ID)
		if err != nil {
			continue
		}
		expanded := s.resolve(target, fields, maxDepth, depth+1)
		out[field] = document.Object(toValueMap(expanded))
	}
	return out
}

func toValueMap(doc document.Document) map[string]document.Value {
	m := make(map[string]document.Value, len(doc))
	for k, v := range doc {
		m[k] = v
	}
	return m
}
