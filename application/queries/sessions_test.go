package queries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/domain/graph"
	"rserv/domain/sulpher"
	"rserv/infrastructure/cache"
	"rserv/infrastructure/config"
	"rserv/pkg/errors"
	"rserv/pkg/observability"
)

func newManager(t *testing.T, mutate func(*config.Config)) (*Manager, *graph.Overlay) {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}

	overlay := graph.NewOverlay(true, "", "", zap.NewNop())
	overlay.UpdateDocument("person", 1, document.Document{
		"id":   document.Int(1),
		"name": document.String("Ada"),
	})

	readCache := cache.New(time.Minute)
	t.Cleanup(readCache.Close)

	m := NewManager(overlay, readCache, observability.New(), cfg, zap.NewNop())
	t.Cleanup(m.Close)
	return m, overlay
}

func waitForTerminal(t *testing.T, m *Manager, id string) Session {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		session, err := m.Get(id)
		require.NoError(t, err)
		if session.Status == StatusCompleted || session.Status == StatusFailed {
			return session
		}
		select {
		case <-deadline:
			t.Fatalf("query %s never finished (status %s)", id, session.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitRunsAsynchronously(t *testing.T) {
	m, _ := newManager(t, nil)

	id, err := m.Submit("MATCH (n:person) RETURN n")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session := waitForTerminal(t, m, id)
	assert.Equal(t, StatusCompleted, session.Status)
	assert.Equal(t, 1, session.Stats.NodesTraversed)
	require.NotNil(t, session.Stats.EndTime)

	result, err := m.Result(id)
	require.NoError(t, err)
	rows := result.([]sulpher.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "person:1", rows[0]["n"])
}

func TestSubmitRejectsSyntaxErrorsEagerly(t *testing.T) {
	m, _ := newManager(t, nil)

	_, err := m.Submit("NOT A QUERY")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestResultGatedOnCompletion(t *testing.T) {
	m, _ := newManager(t, nil)

	_, err := m.Result("missing")
	assert.True(t, errors.IsNotFound(err))

	id, err := m.Submit("MATCH (n:person) RETURN n")
	require.NoError(t, err)
	waitForTerminal(t, m, id)
	_, err = m.Result(id)
	assert.NoError(t, err)
}

func TestCycleErrorFailsSession(t *testing.T) {
	m, overlay := newManager(t, func(cfg *config.Config) {
		cfg.GraphCycleDetection = "error"
	})
	overlay.UpdateDocument("node", 1, document.Document{
		"id": document.Int(1), "next": document.NewRef("node", 2),
	})
	overlay.UpdateDocument("node", 2, document.Document{
		"id": document.Int(2), "next": document.NewRef("node", 1),
	})

	id, err := m.Submit("DFS MATCH (x:node)-[:next]->(y)-[:next]->(z) RETURN z")
	require.NoError(t, err)

	session := waitForTerminal(t, m, id)
	assert.Equal(t, StatusFailed, session.Status)
	assert.Contains(t, session.Result.(string), "cycle")

	_, err = m.Result(id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePreconditionFailed))
}

func TestCleanupDropsExpiredSessions(t *testing.T) {
	m, _ := newManager(t, func(cfg *config.Config) { cfg.GraphQueryTTL = 60 })

	id, err := m.Submit("MATCH (n:person) RETURN n")
	require.NoError(t, err)
	waitForTerminal(t, m, id)

	assert.Zero(t, m.Cleanup(time.Now()))
	assert.Equal(t, 1, m.Cleanup(time.Now().Add(2*time.Minute)))

	_, err = m.Get(id)
	assert.True(t, errors.IsNotFound(err))
}

func TestSubmitDisabledWithoutOverlay(t *testing.T) {
	cfg := config.Defaults()
	readCache := cache.New(time.Minute)
	t.Cleanup(readCache.Close)
	m := NewManager(nil, readCache, observability.New(), cfg, zap.NewNop())
	t.Cleanup(m.Close)

	_, err := m.Submit("MATCH (n) RETURN n")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
