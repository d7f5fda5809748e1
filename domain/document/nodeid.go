package document

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID formats the graph identifier "<entity>:<id>" for a document.
func NodeID(entity string, id int64) string {
	return entity + ":" + strconv.FormatInt(id, 10)
}

// ParseNodeID splits "<entity>:<id>" back into its parts.
func ParseNodeID(nodeID string) (string, int64, error) {
	entity, idStr, ok := strings.Cut(nodeID, ":")
	if !ok || entity == "" {
		return "", 0, fmt.Errorf("malformed node id %q", nodeID)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("malformed node id %q", nodeID)
	}
	return entity, id, nil
}
