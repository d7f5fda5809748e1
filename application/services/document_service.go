// Package services implements the application layer: the pipelines that tie
// the entity store, schema validation, the graph overlay, the full-text
// index and the read cache together.
package services

import (
	"fmt"
	"strings"

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

// DocumentService runs every document operation through the same pipeline:
// validate, persist, mirror into the overlay and full-text index, invalidate
// cached reads.
type DocumentService struct {
	store     *file.Store
	validator *schema.Validator
	overlay   *graph.Overlay  // nil when the overlay is disabled
	fulltext  *fulltext.Index // nil when full-text search is disabled
	cache     *cache.Cache
	metrics   *observability.Metrics
	cfg       *config.Config
	logger    *zap.Logger
}

// NewDocumentService wires the pipeline. overlay and ftIndex may be nil when
// the corresponding feature is disabled.
func NewDocumentService(
	store *file.Store,
	validator *schema.Validator,
	overlay *graph.Overlay,
	ftIndex *fulltext.Index,
	readCache *cache.Cache,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		store:     store,
		validator: validator,
		overlay:   overlay,
		fulltext:  ftIndex,
		cache:     readCache,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *DocumentService) validate(entity string, doc document.Document) error {
	ok, messages := s.validator.Validate(entity, doc)
	if !ok {
		return errors.NewValidationErrors(messages)
	}
	return nil
}

// afterWrite mirrors a successful write into the overlay and full-text
// index and drops cached reads touching the entity.
func (s *DocumentService) afterWrite(entity string, id int64, doc document.Document) {
	if s.overlay != nil {
		s.overlay.UpdateDocument(entity, id, doc)
		s.publishGraphGauges()
	}
	if s.fulltext != nil {
		s.fulltext.UpdateDocument(entity, id, doc)
	}
	s.cache.Invalidate(entity)
	s.metrics.DocumentsWritten.WithLabelValues(entity).Inc()
}

func (s *DocumentService) afterDelete(entity string, id int64) {
	if s.overlay != nil {
		s.overlay.RemoveDocument(entity, id)
		s.publishGraphGauges()
	}
	if s.fulltext != nil {
		s.fulltext.RemoveDocument(entity, id)
	}
	s.cache.Invalidate(entity)
	s.metrics.DocumentsDeleted.WithLabelValues(entity).Inc()
}

func (s *DocumentService) publishGraphGauges() {
	snap := s.overlay.Snapshot()
	stats := snap.Statistics()
	snap.Release()
	s.metrics.GraphNodes.Set(float64(stats.NodeCount))
	s.metrics.GraphEdges.Set(float64(stats.EdgeCount))
}

// Create validates and stores a new document, returning its assigned id.
func (s *DocumentService) Create(entity string, doc document.Document) (int64, error) {
	if err := file.ValidateEntityName(entity); err != nil {
		return 0, err
	}
	if err := s.validate(entity, doc); err != nil {
		return 0, err
	}

	id, err := s.store.Create(entity, doc)
	if err != nil {
		return 0, err
	}
	s.afterWrite(entity, id, doc)
	return id, nil
}

// SaveAt validates and stores a new document under a client-chosen id.
func (s *DocumentService) SaveAt(entity string, id int64, doc document.Document) error {
	if err := file.ValidateEntityName(entity); err != nil {
		return err
	}
	doc.SetID(id)
	if err := s.validate(entity, doc); err != nil {
		return err
	}
	if err := s.store.SaveAt(entity, id, doc); err != nil {
		return err
	}
	s.afterWrite(entity, id, doc)
	return nil
}

// Get loads a document, through the cache. Plain reads are keyed
// "<entity>:<id>"; reads with REF expansion get their own key per lookup
// variant and are additionally tagged with the entities they embed, so a
// write to either side drops the entry.
func (s *DocumentService) Get(entity string, id int64, lookup []string, embedDepth int) (document.Document, error) {
	if embedDepth <= 0 {
		embedDepth = s.cfg.RefEmbedDepth
	}
	key := fmt.Sprintf("%s:%d", entity, id)
	if len(lookup) > 0 {
		key = fmt.Sprintf("%s:%d:%s:%d", entity, id, strings.Join(lookup, ","), embedDepth)
	}

	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		return cached.(document.Document), nil
	}
	s.metrics.CacheMisses.Inc()

	doc, err := s.store.Get(entity, id)
	if err != nil {
		return nil, err
	}

	tags := []string{entity}
	if len(lookup) > 0 {
		tags = append(tags, embeddedEntities(doc, lookup)...)
		doc = s.Resolve(doc, lookup, embedDepth)
	}
	s.cache.SetTagged(key, doc, tags)
	return doc, nil
}

// embeddedEntities lists the entities directly referenced by the lookup
// fields, for cache tagging.
func embeddedEntities(doc document.Document, lookup []string) []string {
	wanted := make(map[string]struct{}, len(lookup))
	for _, field := range lookup {
		wanted[field] = struct{}{}
	}
	var entities []string
	for _, rf := range doc.Refs() {
		if _, ok := wanted[rf.Field]; ok {
			entities = append(entities, rf.Ref.Entity)
		}
	}
	return entities
}

// Replace validates and stores a full replacement document.
func (s *DocumentService) Replace(entity string, id int64, doc document.Document) error {
	doc.SetID(id)
	if err := s.validate(entity, doc); err != nil {
		return err
	}
	if err := s.store.Replace(entity, id, doc); err != nil {
		return err
	}
	s.afterWrite(entity, id, doc)
	return nil
}

// Patch merges a partial document into the stored one under the configured
// null policy. The merged document is what gets validated. Returns the names
// of the fields that changed.
func (s *DocumentService) Patch(entity string, id int64, patch document.Document) ([]string, error) {
	merged, updated, err := s.store.Merge(entity, id, patch, file.NullPolicy(s.cfg.PatchNull))
	if err != nil {
		return nil, err
	}
	if err := s.validate(entity, merged); err != nil {
		return nil, err
	}
	if err := s.store.Write(entity, id, merged); err != nil {
		return nil, err
	}
	s.afterWrite(entity, id, merged)
	return updated, nil
}

// Delete removes a document; with cascading delete enabled it also removes
// every document transitively holding a REF to a deleted one. Returns the
// deleted node identifiers, the direct target first.
func (s *DocumentService) Delete(entity string, id int64) ([]string, error) {
	if !s.cfg.CascadingDelete {
		if err := s.store.Delete(entity, id); err != nil {
			return nil, err
		}
		s.afterDelete(entity, id)
		return []string{document.NodeID(entity, id)}, nil
	}

	deleted, err := s.store.CascadeDelete(entity, id)
	if err != nil {
		return deleted, err
	}
	for _, nodeID := range deleted {
		e, i, parseErr := document.ParseNodeID(nodeID)
		if parseErr != nil {
			continue
		}
		s.afterDelete(e, i)
	}
	return deleted, nil
}

// List returns one page of an entity's documents, sorted per the request.
func (s *DocumentService) List(entity string, params common.PaginationParams) (common.Page, error) {
	if err := file.ValidateEntityName(entity); err != nil {
		return common.Page{}, err
	}

	key := fmt.Sprintf("%s:list:%d:%d:%s", entity, params.Page, params.PerPage, params.SortSpec())
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		return cached.(common.Page), nil
	}
	s.metrics.CacheMisses.Inc()

	docs, err := s.store.List(entity)
	if err != nil {
		return common.Page{}, err
	}
	page := paginate(docs, params)
	s.cache.SetTagged(key, page, []string{entity})
	return page, nil
}

// Search returns documents whose field contains the query as a
// case-insensitive substring, paged and sorted.
func (s *DocumentService) Search(entity, query, field string, params common.PaginationParams) (common.Page, error) {
	if err := file.ValidateEntityName(entity); err != nil {
		return common.Page{}, err
	}
	if query == "" {
		return common.Page{}, errors.NewValidationError("missing search query")
	}
	if field == "" {
		field = "name"
	}

	key := fmt.Sprintf("%s:search:%s:%s:%d:%d:%s", entity, query, field, params.Page, params.PerPage, params.SortSpec())
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		return cached.(common.Page), nil
	}
	s.metrics.CacheMisses.Inc()

	docs, err := s.store.List(entity)
	if err != nil {
		return common.Page{}, err
	}

	needle := strings.ToLower(query)
	var matched []document.Document
	for _, doc := range docs {
		val, ok := doc[field]
		if !ok || val.IsNull() {
			continue
		}
		// Match against the stringified value so numeric and boolean
		// fields are searchable too.
		if strings.Contains(strings.ToLower(val.String()), needle) {
			matched = append(matched, doc)
		}
	}

	page := paginate(matched, params)
	s.cache.SetTagged(key, page, []string{entity})
	return page, nil
}

// FulltextSearch ranks documents across all entities by token overlap with
// the query.
func (s *DocumentService) FulltextSearch(query string, limit int) ([]fulltext.Match, error) {
	if s.fulltext == nil {
		return nil, errors.NewValidationError("full-text search is disabled")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("missing search query")
	}
	return s.fulltext.Search(query, limit), nil
}

func paginate(docs []document.Document, params common.PaginationParams) common.Page {
	keys := make([]document.SortKeySpec, 0, len(params.Sort))
	for _, k := range params.Sort {
		keys = append(keys, document.SortKeySpec{Field: k.Field, Desc: k.Desc})
	}
	document.Sort(docs, keys)

	total := len(docs)
	start, end := common.PageBounds(total, params.Page, params.PerPage)
	return common.Page{
		Items:      docs[start:end],
		Total:      total,
		PageNum:    params.Page,
		PerPage:    params.PerPage,
		TotalPages: common.CalculateTotalPages(total, params.PerPage),
	}
}
