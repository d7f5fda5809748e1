// Package queries runs Sulpher queries asynchronously: each submission gets
// a UUID session, executes on a bounded worker pool, and is retained for a
// configurable TTL after completion.
package queries

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rserv/domain/graph"
	"rserv/domain/sulpher"
	"rserv/infrastructure/cache"
	"rserv/infrastructure/config"
	"rserv/pkg/errors"
	"rserv/pkg/observability"
)

// Session statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stats describes one query execution.
type Stats struct {
	NodesTraversed int        `json:"nodes_traversed"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// Session is the public record of one submitted query.
type Session struct {
	ID     string      `json:"id"`
	Query  string      `json:"query"`
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Stats  Stats       `json:"stats"`
}

const workerCount = 4

// Manager owns the session table and the worker pool.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	overlay *graph.Overlay
	cache   *cache.Cache
	metrics *observability.Metrics
	cfg     *config.Config
	logger  *zap.Logger

	work sync.WaitGroup
	jobs chan string
	stop chan struct{}
	once sync.Once
}

// NewManager starts the worker pool and the hourly session sweep.
func NewManager(overlay *graph.Overlay, readCache *cache.Cache, metrics *observability.Metrics, cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		overlay:  overlay,
		cache:    readCache,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan string, 64),
		stop:     make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		go m.worker()
	}
	go m.sweep()
	return m
}

// Close stops the workers and waits for in-flight queries.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
	m.work.Wait()
}

// Submit parses the query eagerly so syntax errors surface on the submitting
// request, then schedules execution and returns the session id.
func (m *Manager) Submit(query string) (string, error) {
	if m.overlay == nil {
		return "", errors.NewValidationError("graph queries are disabled")
	}
	if _, err := sulpher.Parse(query); err != nil {
		return "", errors.NewValidationError(err.Error())
	}

	session := &Session{
		ID:     uuid.NewString(),
		Query:  query,
		Status: StatusPending,
		Stats:  Stats{StartTime: time.Now()},
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	m.metrics.ActiveSessions.Inc()

	m.work.Add(1)
	select {
	case m.jobs <- session.ID:
	default:
		// Pool backlog is full; run inline rather than dropping.
		go m.run(session.ID)
	}
	return session.ID, nil
}

// Get returns a session snapshot.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return Session{}, errors.NewNotFoundError(fmt.Sprintf("query %s", id))
	}
	return *session, nil
}

// Result returns the result of a completed session. Any other status is a
// precondition failure; a failed session reports its failure message.
func (m *Manager) Result(id string) (interface{}, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case StatusCompleted:
		return session.Result, nil
	case StatusFailed:
		return nil, errors.NewPreconditionFailedError(fmt.Sprintf("query %s failed: %v", id, session.Result))
	default:
		return nil, errors.NewPreconditionFailedError(fmt.Sprintf("query %s is not complete (status %s)", id, session.Status))
	}
}

func (m *Manager) worker() {
	for {
		select {
		case <-m.stop:
			// Drain whatever was queued so Close never waits forever.
			for {
				select {
				case id := <-m.jobs:
					m.run(id)
				default:
					return
				}
			}
		case id := <-m.jobs:
			m.run(id)
		}
	}
}

func (m *Manager) run(id string) {
	defer m.work.Done()

	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	session.Status = StatusRunning
	query := session.Query
	m.mu.Unlock()

	rows, stats, err := m.execute(query)

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok = m.sessions[id]
	if !ok {
		return
	}
	session.Stats.NodesTraversed = stats.NodesTraversed
	session.Stats.EndTime = &now
	if err != nil {
		session.Status = StatusFailed
		session.Result = err.Error()
		m.metrics.QueriesTotal.WithLabelValues(StatusFailed).Inc()
		m.logger.Warn("Graph query failed",
			zap.String("query_id", id),
			zap.Error(err),
		)
		return
	}
	session.Status = StatusCompleted
	session.Result = rows
	m.cache.Set("query:"+id, rows)
	m.metrics.QueriesTotal.WithLabelValues(StatusCompleted).Inc()
	m.metrics.NodesTraversed.Add(float64(stats.NodesTraversed))
}

func (m *Manager) execute(query string) ([]sulpher.Row, sulpher.Stats, error) {
	plan, err := sulpher.Parse(query)
	if err != nil {
		return nil, sulpher.Stats{}, err
	}

	snap := m.overlay.Snapshot()
	defer snap.Release()
	return sulpher.Execute(snap, plan, sulpher.Options{
		MaxDepth:    m.cfg.MaxQueryDepth,
		CyclePolicy: m.cfg.GraphCycleDetection,
	}, m.logger)
}

// sweep drops sessions whose end_time is older than the retention TTL.
func (m *Manager) sweep() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Cleanup(time.Now())
		}
	}
}

// Cleanup removes expired sessions, returning how many were dropped.
func (m *Manager) Cleanup(now time.Time) int {
	ttl := time.Duration(m.cfg.GraphQueryTTL) * time.Second

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if session.Stats.EndTime == nil {
			continue
		}
		if now.Sub(*session.Stats.EndTime) > ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.metrics.ActiveSessions.Sub(float64(removed))
		m.logger.Info("Expired query sessions removed", zap.Int("count", removed))
	}
	return removed
}
