package sulpher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/domain/graph"
)

// testOverlay builds a small social graph:
//
//	person:1 (Ada, 36)  --friend--> person:2 (Bob, 28)
//	person:2            --friend--> person:3 (Cyn, 41)
//	person:1            --boss---->  company:1
func testOverlay(t *testing.T) *graph.Overlay {
	t.Helper()
	overlay := graph.NewOverlay(true, "", "", zap.NewNop())

	overlay.UpdateDocument("company", 1, document.Document{
		"id":   document.Int(1),
		"name": document.String("Initech"),
	})
	overlay.UpdateDocument("person", 1, document.Document{
		"id":     document.Int(1),
		"name":   document.String("Ada"),
		"age":    document.Int(36),
		"friend": document.NewRef("person", 2),
		"boss":   document.NewRef("company", 1),
	})
	overlay.UpdateDocument("person", 2, document.Document{
		"id":     document.Int(2),
		"name":   document.String("Bob"),
		"age":    document.Int(28),
		"friend": document.NewRef("person", 3),
	})
	overlay.UpdateDocument("person", 3, document.Document{
		"id":   document.Int(3),
		"name": document.String("Cyn"),
		"age":  document.Int(41),
	})
	return overlay
}

func runQuery(t *testing.T, overlay *graph.Overlay, query string, opts Options) ([]Row, Stats, error) {
	t.Helper()
	plan, err := Parse(query)
	require.NoError(t, err)

	snap := overlay.Snapshot()
	defer snap.Release()
	return Execute(snap, plan, opts, zap.NewNop())
}

func TestExecuteSingleNodeMatch(t *testing.T) {
	overlay := testOverlay(t)

	rows, stats, err := runQuery(t, overlay, "MATCH (n:person) RETURN n", Options{MaxDepth: 10})
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "person:1", rows[0]["n"])
	assert.Equal(t, "person:2", rows[1]["n"])
	assert.Equal(t, "person:3", rows[2]["n"])
	assert.Equal(t, 3, stats.NodesTraversed)
}

func TestExecutePropertyConstraintOnStart(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay, `MATCH (n:person {name: "Bob"}) RETURN n.age`, Options{MaxDepth: 10})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	val, ok := rows[0]["n.age"].(document.Value)
	require.True(t, ok)
	assert.True(t, document.Equals(val, document.Int(28)))
}

func TestExecutePathTraversal(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		"MATCH (a:person)-[:friend]->(b:person) RETURN a.name, b.name",
		Options{MaxDepth: 10})
	require.NoError(t, err)

	require.Len(t, rows, 2)
	names := make([][2]string, 0, 2)
	for _, row := range rows {
		a := row["a.name"].(document.Value)
		b := row["b.name"].(document.Value)
		names = append(names, [2]string{a.Str(), b.Str()})
	}
	assert.Contains(t, names, [2]string{"Ada", "Bob"})
	assert.Contains(t, names, [2]string{"Bob", "Cyn"})
}

func TestExecuteUntypedRelSkipsReverseEdges(t *testing.T) {
	overlay := testOverlay(t)

	// person:3 has only an incoming friend edge; an untyped rel must not
	// walk the stored companion edge back to person:2.
	rows, _, err := runQuery(t, overlay,
		`MATCH (a:person {name: "Cyn"})-[]->(b) RETURN b`,
		Options{MaxDepth: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecuteExplicitReverseRel(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		`MATCH (a:person {name: "Cyn"})-[:reverse_friend]->(b) RETURN b`,
		Options{MaxDepth: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "person:2", rows[0]["b"])
}

func TestExecuteWhereFilter(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		"MATCH (n:person) WHERE n.age > 30 RETURN n.name",
		Options{MaxDepth: 10})
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.True(t, document.Equals(rows[0]["n.name"].(document.Value), document.String("Ada")))
	assert.True(t, document.Equals(rows[1]["n.name"].(document.Value), document.String("Cyn")))
}

func TestExecuteWhereTypeMismatchIsFalse(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		`MATCH (n:person) WHERE n.name > 10 RETURN n`,
		Options{MaxDepth: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecuteAggregates(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		"MATCH (n:person) RETURN COUNT(n), SUM(n.age), AVG(n.age), MIN(n.age), MAX(n.age)",
		Options{MaxDepth: 10})
	require.NoError(t, err)

	require.Len(t, rows, 3)
	row := rows[0]
	assert.Equal(t, 3, row["COUNT(n)"])
	assert.InDelta(t, 105.0, row["SUM(n.age)"].(float64), 1e-9)
	assert.InDelta(t, 35.0, row["AVG(n.age)"].(float64), 1e-9)
	assert.True(t, document.Equals(row["MIN(n.age)"].(document.Value), document.Int(28)))
	assert.True(t, document.Equals(row["MAX(n.age)"].(document.Value), document.Int(41)))
}

func TestExecuteAvgOfNothingIsNull(t *testing.T) {
	overlay := testOverlay(t)

	rows, _, err := runQuery(t, overlay,
		"MATCH (n:company) RETURN AVG(n.age)",
		Options{MaxDepth: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["AVG(n.age)"])
}

func TestExecuteMaxDepthCutsBranches(t *testing.T) {
	overlay := testOverlay(t)

	// Two hops required, one allowed.
	rows, _, err := runQuery(t, overlay,
		"MATCH (a:person)-[:friend]->(b)-[:friend]->(c) RETURN c",
		Options{MaxDepth: 1})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, _, err = runQuery(t, overlay,
		"MATCH (a:person)-[:friend]->(b)-[:friend]->(c) RETURN c",
		Options{MaxDepth: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "person:3", rows[0]["c"])
}

func cyclicOverlay(t *testing.T) *graph.Overlay {
	t.Helper()
	overlay := graph.NewOverlay(true, "", "", zap.NewNop())
	overlay.UpdateDocument("node", 1, document.Document{
		"id":   document.Int(1),
		"next": document.NewRef("node", 2),
	})
	overlay.UpdateDocument("node", 2, document.Document{
		"id":   document.Int(2),
		"next": document.NewRef("node", 1),
	})
	return overlay
}

func TestExecuteCyclePolicyError(t *testing.T) {
	overlay := cyclicOverlay(t)

	_, _, err := runQuery(t, overlay,
		"DFS MATCH (x)-[:next]->(y)-[:next]->(z) RETURN z",
		Options{MaxDepth: 10, CyclePolicy: CycleError})
	require.Error(t, err)
	var cycleErr *TraversalCycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestExecuteCyclePolicyWarnSkipsReentry(t *testing.T) {
	overlay := cyclicOverlay(t)

	for _, policy := range []string{CycleWarn, CycleIgnore, CycleDisable} {
		rows, _, err := runQuery(t, overlay,
			"DFS MATCH (x)-[:next]->(y)-[:next]->(z) RETURN z",
			Options{MaxDepth: 10, CyclePolicy: policy})
		require.NoError(t, err, policy)
		assert.Empty(t, rows, policy)
	}
}

func TestExecuteBFSEnumeratesCyclesWithoutError(t *testing.T) {
	overlay := cyclicOverlay(t)

	// Breadth-first traversal has no cycle handling: revisiting paths are
	// enumerated up to the depth bound under every policy.
	for _, policy := range []string{CycleError, CycleWarn, CycleIgnore, CycleDisable} {
		rows, _, err := runQuery(t, overlay,
			"BFS MATCH (x)-[:next]->(y)-[:next]->(z) RETURN z",
			Options{MaxDepth: 10, CyclePolicy: policy})
		require.NoError(t, err, policy)

		targets := make([]string, 0, len(rows))
		for _, row := range rows {
			targets = append(targets, row["z"].(string))
		}
		assert.ElementsMatch(t, []string{"node:1", "node:2"}, targets, policy)
	}
}

func TestExecuteDFSMatchesBFSResults(t *testing.T) {
	overlay := testOverlay(t)

	bfsRows, _, err := runQuery(t, overlay,
		"BFS MATCH (a:person)-[:friend]->(b) RETURN b",
		Options{MaxDepth: 10})
	require.NoError(t, err)

	dfsRows, _, err := runQuery(t, overlay,
		"DFS MATCH (a:person)-[:friend]->(b) RETURN b",
		Options{MaxDepth: 10})
	require.NoError(t, err)

	assert.ElementsMatch(t, bfsRows, dfsRows)
}
