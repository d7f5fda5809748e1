package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalDistinguishesIntAndFloat(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"a": 3, "b": 3.0, "c": 3e2}`), &doc))

	assert.Equal(t, KindInt, doc["a"].Kind())
	assert.Equal(t, KindFloat, doc["b"].Kind())
	assert.Equal(t, KindFloat, doc["c"].Kind())
	assert.Equal(t, int64(3), doc["a"].Int())
	assert.Equal(t, 300.0, doc["c"].Float())
}

func TestUnmarshalRecognisesRefs(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{
		"author": {"type": "REF", "entity": "person", "id": 7},
		"meta":   {"type": "REF", "entity": "person"},
		"other":  {"type": "ref", "entity": "person", "id": 7}
	}`), &doc))

	ref, ok := doc["author"].Ref()
	require.True(t, ok)
	assert.Equal(t, Ref{Entity: "person", ID: 7}, ref)

	// Incomplete or wrongly-cased shapes stay plain objects.
	assert.Equal(t, KindObject, doc["meta"].Kind())
	assert.Equal(t, KindObject, doc["other"].Kind())
}

func TestMarshalRoundTripsRef(t *testing.T) {
	doc := Document{"author": NewRef("person", 7)}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	ref, ok := back["author"].Ref()
	require.True(t, ok)
	assert.Equal(t, Ref{Entity: "person", ID: 7}, ref)
}

func TestEqualsNumericInterop(t *testing.T) {
	assert.True(t, Equals(Int(1), Float(1.0)))
	assert.False(t, Equals(Int(1), Float(1.5)))
	assert.False(t, Equals(Int(1), String("1")))
	assert.True(t, Equals(
		Array(Int(1), String("x")),
		Array(Int(1), String("x")),
	))
	assert.True(t, Equals(NewRef("a", 1), NewRef("a", 1)))
	assert.False(t, Equals(NewRef("a", 1), NewRef("a", 2)))
}

func TestCompareHomogeneousOnly(t *testing.T) {
	cmp, ok := Compare(Int(1), Float(2.0))
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare(String("a"), String("B"))
	assert.True(t, ok)
	assert.Equal(t, 1, cmp, "WHERE string comparison is case-sensitive")

	_, ok = Compare(String("a"), Int(1))
	assert.False(t, ok)
	_, ok = Compare(Null(), Null())
	assert.False(t, ok)
}

func TestSortCompareIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, 0, SortCompare(String("Ada"), String("ada")))
	assert.Equal(t, -1, SortCompare(Int(1), Float(1.5)))
}

func TestSortMissingFieldsSortAsNull(t *testing.T) {
	docs := []Document{
		{"id": Int(1), "name": String("b")},
		{"id": Int(2)},
		{"id": Int(3), "name": String("a")},
	}
	Sort(docs, []SortKeySpec{{Field: "name"}})

	first, _ := docs[0].ID()
	assert.Equal(t, int64(3), first, "missing name sorts by its null string form")
}

func TestSortDescendingAndMultiKey(t *testing.T) {
	docs := []Document{
		{"id": Int(1), "group": String("a"), "rank": Int(1)},
		{"id": Int(2), "group": String("a"), "rank": Int(2)},
		{"id": Int(3), "group": String("b"), "rank": Int(1)},
	}
	Sort(docs, []SortKeySpec{{Field: "group"}, {Field: "rank", Desc: true}})

	var ids []int64
	for _, doc := range docs {
		id, _ := doc.ID()
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{2, 1, 3}, ids)
}

func TestRefsAreFieldOrdered(t *testing.T) {
	doc := Document{
		"zeta":  NewRef("b", 2),
		"alpha": NewRef("a", 1),
		"name":  String("not a ref"),
	}
	refs := doc.Refs()
	require.Len(t, refs, 2)
	assert.Equal(t, "alpha", refs[0].Field)
	assert.Equal(t, "zeta", refs[1].Field)
}

func TestNodeIDRoundTrip(t *testing.T) {
	entity, id, err := ParseNodeID(NodeID("person", 12))
	require.NoError(t, err)
	assert.Equal(t, "person", entity)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"person", "person:", ":1", "person:0", "person:x"} {
		_, _, err := ParseNodeID(bad)
		assert.Error(t, err, bad)
	}
}
