// Package fulltext maintains an in-memory inverted token index over string
// field values, used by the cross-entity search endpoint.
package fulltext

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"rserv/domain/document"
)

var tokenPattern = regexp.MustCompile(`\w+`)

// DefaultLimit caps result sets when the request does not say otherwise.
const DefaultLimit = 10

// Match is one ranked search hit.
type Match struct {
	NodeID string `json:"node_id"`
	Score  int    `json:"score"` // number of query tokens present
}

// Index maps lowercase tokens to the node ids whose documents contain them.
type Index struct {
	mu     sync.RWMutex
	tokens map[string]map[string]struct{}
	byNode map[string][]string // tokens per node, for cheap removal
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tokens: make(map[string]map[string]struct{}),
		byNode: make(map[string][]string),
	}
}

// tokenize extracts lowercase word tokens from every string value of the
// document, including strings nested in arrays and objects.
func tokenize(doc document.Document) []string {
	seen := make(map[string]struct{})
	var walk func(val document.Value)
	walk = func(val document.Value) {
		switch val.Kind() {
		case document.KindString:
			for _, token := range tokenPattern.FindAllString(strings.ToLower(val.Str()), -1) {
				seen[token] = struct{}{}
			}
		case document.KindArray:
			for _, item := range val.Array() {
				walk(item)
			}
		case document.KindObject:
			for _, item := range val.Object() {
				walk(item)
			}
		}
	}
	for _, val := range doc {
		walk(val)
	}

	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// UpdateDocument reindexes one document.
func (ix *Index) UpdateDocument(entity string, id int64, doc document.Document) {
	nodeID := document.NodeID(entity, id)
	tokens := tokenize(doc)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(nodeID)
	ix.byNode[nodeID] = tokens
	for _, token := range tokens {
		set, ok := ix.tokens[token]
		if !ok {
			set = make(map[string]struct{})
			ix.tokens[token] = set
		}
		set[nodeID] = struct{}{}
	}
}

// RemoveDocument drops a document from the index.
func (ix *Index) RemoveDocument(entity string, id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(document.NodeID(entity, id))
}

func (ix *Index) removeLocked(nodeID string) {
	for _, token := range ix.byNode[nodeID] {
		set := ix.tokens[token]
		delete(set, nodeID)
		if len(set) == 0 {
			delete(ix.tokens, token)
		}
	}
	delete(ix.byNode, nodeID)
}

// Rebuild repopulates the index from stored documents.
func (ix *Index) Rebuild(docs map[string][]document.Document) {
	ix.mu.Lock()
	ix.tokens = make(map[string]map[string]struct{})
	ix.byNode = make(map[string][]string)
	ix.mu.Unlock()

	for entity, entityDocs := range docs {
		for _, doc := range entityDocs {
			if id, ok := doc.ID(); ok {
				ix.UpdateDocument(entity, id, doc)
			}
		}
	}
}

// Search ranks documents by how many query tokens they contain. Ties break
// by node id for determinism. limit <= 0 falls back to DefaultLimit.
func (ix *Index) Search(query string, limit int) []Match {
	if limit <= 0 {
		limit = DefaultLimit
	}
	queryTokens := tokenPattern.FindAllString(strings.ToLower(query), -1)
	if len(queryTokens) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]int)
	counted := make(map[string]struct{}, len(queryTokens))
	for _, token := range queryTokens {
		if _, dup := counted[token]; dup {
			continue
		}
		counted[token] = struct{}{}
		for nodeID := range ix.tokens[token] {
			scores[nodeID]++
		}
	}

	matches := make([]Match, 0, len(scores))
	for nodeID, score := range scores {
		matches = append(matches, Match{NodeID: nodeID, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].NodeID < matches[j].NodeID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
