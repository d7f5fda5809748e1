package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rserv/domain/document"
)

func newIndexedOverlay() *Overlay {
	return NewOverlay(true, "", "", zap.NewNop())
}

func TestUpdateDocumentCreatesForwardAndReverseEdges(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("post", 1, document.Document{
		"id":     document.Int(1),
		"author": document.NewRef("person", 9),
	})

	snap := o.Snapshot()
	defer snap.Release()

	edges := snap.Outgoing("post:1")
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{Target: "person:9", Label: "author"}, edges[0])

	// The target exists as a placeholder with a companion edge back.
	back := snap.Outgoing("person:9")
	require.Len(t, back, 1)
	assert.Equal(t, Edge{Target: "post:1", Label: "reverse_author"}, back[0])
}

func TestUpdateDocumentReplacesItsOwnEdges(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("post", 1, document.Document{
		"id":     document.Int(1),
		"author": document.NewRef("person", 1),
	})
	o.UpdateDocument("post", 1, document.Document{
		"id":     document.Int(1),
		"editor": document.NewRef("person", 2),
	})

	snap := o.Snapshot()
	defer snap.Release()

	edges := snap.Outgoing("post:1")
	require.Len(t, edges, 1)
	assert.Equal(t, "person:2", edges[0].Target)

	// The old reverse edge is gone too.
	assert.Empty(t, snap.Outgoing("person:1"))
}

func TestWritingTargetKeepsEdgesFromOtherDocuments(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("person", 1, document.Document{
		"id":       document.Int(1),
		"employer": document.NewRef("company", 9),
	})
	// Filling in the placeholder target must not disturb person:1's edge.
	o.UpdateDocument("company", 9, document.Document{
		"id":   document.Int(9),
		"name": document.String("Acme"),
	})

	snap := o.Snapshot()
	defer snap.Release()

	edges := snap.Outgoing("person:1")
	require.Len(t, edges, 1)
	assert.Equal(t, Edge{Target: "company:9", Label: "employer"}, edges[0])

	back := snap.Outgoing("company:9")
	require.Len(t, back, 1)
	assert.Equal(t, Edge{Target: "person:1", Label: "reverse_employer"}, back[0])
}

func TestSequentialWritesFormForwardCycle(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("task", 1, document.Document{
		"id":   document.Int(1),
		"next": document.NewRef("task", 2),
	})
	o.UpdateDocument("task", 2, document.Document{
		"id":   document.Int(2),
		"next": document.NewRef("task", 1),
	})

	snap := o.Snapshot()
	defer snap.Release()

	assert.Contains(t, snap.Outgoing("task:1"), Edge{Target: "task:2", Label: "next"})
	assert.Contains(t, snap.Outgoing("task:2"), Edge{Target: "task:1", Label: "next"})
}

func TestRemoveDocumentDetachesEverything(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("person", 1, document.Document{"id": document.Int(1)})
	o.UpdateDocument("post", 1, document.Document{
		"id":     document.Int(1),
		"author": document.NewRef("person", 1),
	})

	o.RemoveDocument("person", 1)

	snap := o.Snapshot()
	defer snap.Release()

	_, ok := snap.Node("person:1")
	assert.False(t, ok)
	for _, edge := range snap.Outgoing("post:1") {
		assert.NotEqual(t, "person:1", edge.Target)
	}
	_, inIndex := snap.IndexSet("person")["person:1"]
	assert.False(t, inIndex)
}

func TestIndexTagsEntityRefEntityAndRelationship(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("post", 1, document.Document{
		"id":     document.Int(1),
		"author": document.NewRef("person", 1),
	})

	snap := o.Snapshot()
	defer snap.Release()

	for _, key := range []string{"post", "person", "relationship:author"} {
		_, ok := snap.IndexSet(key)["post:1"]
		assert.True(t, ok, key)
	}
}

func TestRebuildReplacesState(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("stale", 1, document.Document{"id": document.Int(1)})

	o.Rebuild(map[string][]document.Document{
		"person": {
			{"id": document.Int(1), "name": document.String("Ada")},
		},
	})

	snap := o.Snapshot()
	defer snap.Release()

	_, stale := snap.Node("stale:1")
	assert.False(t, stale)
	node, ok := snap.Node("person:1")
	require.True(t, ok)
	assert.Equal(t, "person", node.Type)
}

func TestNodeIDsPreserveInsertionOrder(t *testing.T) {
	o := newIndexedOverlay()
	o.UpdateDocument("a", 1, document.Document{"id": document.Int(1)})
	o.UpdateDocument("b", 1, document.Document{"id": document.Int(1)})
	o.UpdateDocument("c", 1, document.Document{"id": document.Int(1)})

	snap := o.Snapshot()
	defer snap.Release()
	assert.Equal(t, []string{"a:1", "b:1", "c:1"}, snap.NodeIDs())
}
