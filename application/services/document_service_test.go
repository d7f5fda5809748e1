package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/domain/graph"
	"rserv/domain/schema"
	"rserv/infrastructure/cache"
	"rserv/infrastructure/config"
	"rserv/infrastructure/fulltext"
	"rserv/infrastructure/persistence/file"
	"rserv/pkg/common"
	"rserv/pkg/errors"
	"rserv/pkg/observability"
)

type fixture struct {
	svc     *DocumentService
	store   *file.Store
	overlay *graph.Overlay
	cfg     *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.SchemaDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	store, err := file.NewStore(cfg.DataDir, cfg.SchemaName, logger)
	require.NoError(t, err)

	registry, err := schema.NewRegistry(cfg.SchemaDir, cfg.SchemaName, logger)
	require.NoError(t, err)
	validator := schema.NewValidator(registry, store)

	overlay := graph.NewOverlay(cfg.GraphIndexed(), "", "", logger)
	ftIndex := fulltext.NewIndex()
	readCache := cache.New(cfg.CacheTTLDuration())
	t.Cleanup(readCache.Close)

	svc := NewDocumentService(store, validator, overlay, ftIndex, readCache, observability.New(), cfg, logger)
	return &fixture{svc: svc, store: store, overlay: overlay, cfg: cfg}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Create("person", document.Document{
		"name": document.String("Ada"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	doc, err := f.svc.Get("person", id, nil, 0)
	require.NoError(t, err)
	assert.True(t, document.Equals(doc["name"], document.String("Ada")))
}

func TestWriteMirrorsIntoOverlay(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create("person", document.Document{"name": document.String("Ada")})
	require.NoError(t, err)
	_, err = f.svc.Create("post", document.Document{
		"author": document.NewRef("person", 1),
	})
	require.NoError(t, err)

	snap := f.overlay.Snapshot()
	defer snap.Release()
	edges := snap.OutgoingEdges("post:1")
	require.Len(t, edges, 1)
	assert.Equal(t, "person:1", edges[0].Target)
	assert.Equal(t, "author", edges[0].Type)
}

func TestDeleteWithoutCascade(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Create("person", document.Document{})
	require.NoError(t, err)

	deleted, err := f.svc.Delete("person", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"person:1"}, deleted)

	_, err = f.svc.Get("person", id, nil, 0)
	assert.True(t, errors.IsNotFound(err))

	snap := f.overlay.Snapshot()
	defer snap.Release()
	_, ok := snap.Node("person:1")
	assert.False(t, ok)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.CascadingDelete = true })

	require.NoError(t, f.svc.SaveAt("person", 1, document.Document{}))
	require.NoError(t, f.svc.SaveAt("post", 1, document.Document{
		"author": document.NewRef("person", 1),
	}))

	deleted, err := f.svc.Delete("person", 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"person:1", "post:1"}, deleted)

	_, err = f.svc.Get("post", 1, nil, 0)
	assert.True(t, errors.IsNotFound(err))
}

func TestPatchReportsUpdatedFields(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Create("person", document.Document{
		"name": document.String("Ada"),
		"age":  document.Int(36),
	})
	require.NoError(t, err)

	updated, err := f.svc.Patch("person", id, document.Document{
		"age":  document.Int(37),
		"name": document.String("Ada"), // unchanged
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, updated)
}

func TestGetServesFromCacheUntilWrite(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Create("person", document.Document{"name": document.String("Ada")})
	require.NoError(t, err)

	// Prime the cache, then write behind its back through the store.
	_, err = f.svc.Get("person", id, nil, 0)
	require.NoError(t, err)
	require.NoError(t, f.store.Replace("person", id, document.Document{
		"name": document.String("Grace"),
	}))

	doc, err := f.svc.Get("person", id, nil, 0)
	require.NoError(t, err)
	assert.True(t, document.Equals(doc["name"], document.String("Ada")), "stale read expected")

	// A write through the service invalidates the entity's entries.
	_, err = f.svc.Patch("person", id, document.Document{"age": document.Int(1)})
	require.NoError(t, err)
	doc, err = f.svc.Get("person", id, nil, 0)
	require.NoError(t, err)
	assert.True(t, document.Equals(doc["name"], document.String("Grace")))
}

func TestListPaginatesAndSorts(t *testing.T) {
	f := newFixture(t, nil)
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := f.svc.Create("person", document.Document{"name": document.String(name)})
		require.NoError(t, err)
	}

	page, err := f.svc.List("person", common.PaginationParams{
		Page:    1,
		PerPage: 2,
		Sort:    []common.SortKey{{Field: "name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	docs := page.Items.([]document.Document)
	require.Len(t, docs, 2)
	assert.True(t, document.Equals(docs[0]["name"], document.String("alice")))
	assert.True(t, document.Equals(docs[1]["name"], document.String("bob")))
}

func TestSearchMatchesSubstrings(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create("person", document.Document{"name": document.String("Ada Lovelace")})
	require.NoError(t, err)
	_, err = f.svc.Create("person", document.Document{"name": document.String("Grace Hopper")})
	require.NoError(t, err)

	page, err := f.svc.Search("person", "love", "name", common.PaginationParams{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = f.svc.Search("person", "", "name", common.PaginationParams{Page: 1, PerPage: 10})
	assert.True(t, errors.IsValidation(err))
}

func TestSearchMatchesStringifiedValues(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create("person", document.Document{
		"name": document.String("Ada"),
		"age":  document.Int(42),
	})
	require.NoError(t, err)
	_, err = f.svc.Create("person", document.Document{
		"name": document.String("Grace"),
		"age":  document.Int(36),
	})
	require.NoError(t, err)

	page, err := f.svc.Search("person", "42", "age", common.PaginationParams{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestExpandedGetIsCachedPerVariant(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.SaveAt("company", 1, document.Document{
		"name": document.String("Acme"),
	}))
	require.NoError(t, f.svc.SaveAt("person", 1, document.Document{
		"employer": document.NewRef("company", 1),
	}))

	// Prime the expanded variant, then write behind its back.
	_, err := f.svc.Get("person", 1, []string{"employer"}, 1)
	require.NoError(t, err)
	require.NoError(t, f.store.Replace("company", 1, document.Document{
		"name": document.String("Initech"),
	}))

	doc, err := f.svc.Get("person", 1, []string{"employer"}, 1)
	require.NoError(t, err)
	employer := doc["employer"].Object()
	require.NotNil(t, employer)
	assert.True(t, document.Equals(employer["name"], document.String("Acme")), "stale read expected")

	// The entry is tagged with the embedded entity, so writing the company
	// through the service drops it.
	require.NoError(t, f.svc.Replace("company", 1, document.Document{
		"name": document.String("Hooli"),
	}))
	doc, err = f.svc.Get("person", 1, []string{"employer"}, 1)
	require.NoError(t, err)
	assert.True(t, document.Equals(doc["employer"].Object()["name"], document.String("Hooli")))
}

func TestResolveExpandsRefsToDepth(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.SaveAt("person", 1, document.Document{
		"name":   document.String("Ada"),
		"mentor": document.NewRef("person", 2),
	}))
	require.NoError(t, f.svc.SaveAt("person", 2, document.Document{
		"name":   document.String("Grace"),
		"mentor": document.NewRef("person", 3),
	}))
	require.NoError(t, f.svc.SaveAt("person", 3, document.Document{
		"name": document.String("Jean"),
	}))

	doc, err := f.svc.Get("person", 1, []string{"mentor"}, 1)
	require.NoError(t, err)

	mentor := doc["mentor"].Object()
	require.NotNil(t, mentor)
	assert.True(t, document.Equals(mentor["name"], document.String("Grace")))
	// Depth 1 leaves the nested REF unexpanded.
	_, isRef := mentor["mentor"].Ref()
	assert.True(t, isRef)
}

func TestResolveLeavesDanglingRefInPlace(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.SaveAt("person", 1, document.Document{
		"mentor": document.NewRef("person", 99),
	}))

	doc, err := f.svc.Get("person", 1, []string{"mentor"}, 2)
	require.NoError(t, err)
	_, isRef := doc["mentor"].Ref()
	assert.True(t, isRef)
}
