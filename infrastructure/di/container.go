// Package di assembles the application: every component is constructed here
// in dependency order and torn down in reverse.
package di

import (
	"go.uber.org/zap"

	"rserv/application/queries"
	"rserv/application/services"
	"rserv/domain/graph"
	"rserv/domain/schema"
	"rserv/infrastructure/cache"
	"rserv/infrastructure/config"
	"rserv/infrastructure/fulltext"
	"rserv/infrastructure/persistence/file"
	"rserv/pkg/observability"
)

// Container holds the wired application components.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Store     *file.Store
	Registry  *schema.Registry
	Watcher   *schema.Watcher
	Overlay   *graph.Overlay // nil when rserv_graph=disabled
	Fulltext  *fulltext.Index
	Cache     *cache.Cache
	Documents *services.DocumentService
	Sessions  *queries.Manager
}

// Build wires the container. The overlay and full-text index come up empty;
// call Bootstrap afterwards to populate them from the store.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	metrics := observability.New()

	store, err := file.NewStore(cfg.DataDir, cfg.SchemaName, logger)
	if err != nil {
		return nil, err
	}

	registry, err := schema.NewRegistry(cfg.SchemaDir, cfg.SchemaName, logger)
	if err != nil {
		return nil, err
	}
	watcher, err := schema.NewWatcher(registry, logger)
	if err != nil {
		return nil, err
	}
	validator := schema.NewValidator(registry, store)

	var overlay *graph.Overlay
	if cfg.GraphEnabled() {
		overlay = graph.NewOverlay(cfg.GraphIndexed(), cfg.AdjacencyListFile, cfg.GraphIndexFile, logger)
	}

	var ftIndex *fulltext.Index
	if cfg.FulltextEnabled {
		ftIndex = fulltext.NewIndex()
	}

	readCache := cache.New(cfg.CacheTTLDuration())

	documents := services.NewDocumentService(store, validator, overlay, ftIndex, readCache, metrics, cfg, logger)
	sessions := queries.NewManager(overlay, readCache, metrics, cfg, logger)

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Store:     store,
		Registry:  registry,
		Watcher:   watcher,
		Overlay:   overlay,
		Fulltext:  ftIndex,
		Cache:     readCache,
		Documents: documents,
		Sessions:  sessions,
	}, nil
}

// Bootstrap rebuilds the in-memory structures from the entity store. In
// indexed mode this also rewrites the on-disk graph dumps, superseding
// whatever a previous run left behind.
func (c *Container) Bootstrap() error {
	if c.Overlay == nil && c.Fulltext == nil {
		return nil
	}

	docs, err := c.Store.All()
	if err != nil {
		return err
	}
	if c.Overlay != nil {
		c.Overlay.Rebuild(docs)
		c.Logger.Info("Graph overlay rebuilt from store",
			zap.Int("entities", len(docs)),
		)
	}
	if c.Fulltext != nil {
		c.Fulltext.Rebuild(docs)
	}
	return nil
}

// Close tears the container down in reverse construction order.
func (c *Container) Close() {
	c.Sessions.Close()
	c.Cache.Close()
	if c.Watcher != nil {
		if err := c.Watcher.Close(); err != nil {
			c.Logger.Warn("Schema watcher close failed", zap.Error(err))
		}
	}
}
