// Package rest wires the HTTP surface: the /api/v1 document, graph, query
// and search endpoints plus health and metrics.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"rserv/application/queries"
	"rserv/application/services"
	"rserv/domain/graph"
	"rserv/infrastructure/config"
	"rserv/interfaces/http/rest/handlers"
	"rserv/interfaces/http/rest/middleware"
	"rserv/pkg/common"
	"rserv/pkg/observability"
)

// Router creates and configures the HTTP router.
type Router struct {
	documents *services.DocumentService
	sessions  *queries.Manager
	overlay   *graph.Overlay
	metrics   *observability.Metrics
	cfg       *config.Config
	logger    *zap.Logger
}

// NewRouter creates a new router instance. overlay may be nil when the
// graph feature is disabled.
func NewRouter(
	documents *services.DocumentService,
	sessions *queries.Manager,
	overlay *graph.Overlay,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		documents: documents,
		sessions:  sessions,
		overlay:   overlay,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if rt.cfg.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	entityHandler := handlers.NewEntityHandler(rt.documents, rt.cfg.DefaultPageSize, rt.logger)
	graphHandler := handlers.NewGraphHandler(rt.overlay, rt.cfg.MaxQueryDepth, rt.logger)
	queryHandler := handlers.NewQueryHandler(rt.sessions, rt.logger)
	searchHandler := handlers.NewSearchHandler(rt.documents, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", searchHandler.Fulltext)

		r.Route("/graph", func(r chi.Router) {
			r.Post("/query", queryHandler.Submit)
			r.Get("/query/{queryID}", queryHandler.Status)
			r.Get("/query/{queryID}/result", queryHandler.Result)

			r.Post("/nodes/search", graphHandler.SearchNodes)
			r.Post("/nodes/neighborhoodAggregate", graphHandler.NeighborhoodAggregate)
			r.Get("/nodes/{nodeID}", graphHandler.GetNode)
			r.Get("/nodes/{nodeID}/degree", graphHandler.Degree)
			r.Get("/nodes/{nodeID}/relationships", graphHandler.RelationshipTypes)

			r.Post("/shortestPath", graphHandler.ShortestPath)
			r.Post("/pathExists", graphHandler.PathExists)
			r.Post("/commonNeighbors", graphHandler.CommonNeighbors)
			r.Post("/subgraph", graphHandler.Subgraph)
			r.Get("/statistics", graphHandler.Statistics)
			r.Get("/{nodeID}/in", graphHandler.IncomingEdges)
			r.Get("/{nodeID}/out", graphHandler.OutgoingEdges)
		})

		r.Route("/{entity}", func(r chi.Router) {
			r.Post("/", entityHandler.Create)
			r.Get("/list", entityHandler.List)
			r.Get("/search", entityHandler.Search)
			r.Post("/save/{id}", entityHandler.SaveAt)
			r.Get("/{id}", entityHandler.Get)
			r.Put("/{id}", entityHandler.Replace)
			r.Patch("/{id}", entityHandler.Patch)
			r.Delete("/{id}", entityHandler.Delete)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"graph":  rt.cfg.RservGraph,
	})
}
