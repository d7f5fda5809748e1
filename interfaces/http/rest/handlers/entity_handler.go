// Package handlers implements the /api/v1 HTTP endpoints.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rserv/application/services"
	"rserv/domain/document"
	"rserv/pkg/common"
	"rserv/pkg/errors"
)

const maxBodyBytes = 1 << 20

// EntityHandler serves document CRUD, listing and per-entity search.
type EntityHandler struct {
	documents *services.DocumentService
	pageSize  int
	logger    *zap.Logger
}

// NewEntityHandler creates an entity handler.
func NewEntityHandler(documents *services.DocumentService, defaultPageSize int, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{documents: documents, pageSize: defaultPageSize, logger: logger}
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("invalid document id: " + raw)
	}
	return id, nil
}

func parseDocument(r *http.Request) (document.Document, error) {
	var doc document.Document
	if err := common.ParseJSONBody(r, &doc, maxBodyBytes); err != nil {
		return nil, errors.NewValidationError("request body is not a valid JSON object")
	}
	return doc, nil
}

// Create handles POST /{entity}.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	doc, err := parseDocument(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	id, err := h.documents.Create(entity, doc)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	h.logger.Info("Document created",
		zap.String("entity", entity),
		zap.Int64("id", id),
	)
	common.RespondResource(w, r, http.StatusCreated, entity, map[string]interface{}{
		"message": "Document created",
		"id":      id,
	}, common.Links{
		"document": {Href: "/api/v1/" + entity + "/" + strconv.FormatInt(id, 10)},
	})
}

// SaveAt handles POST /{entity}/save/{id}.
func (h *EntityHandler) SaveAt(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id, err := pathID(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	doc, err := parseDocument(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	if err := h.documents.SaveAt(entity, id, doc); err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondResource(w, r, http.StatusCreated, entity, map[string]interface{}{
		"message": "Document created",
		"id":      id,
	}, nil)
}

// Get handles GET /{entity}/{id}. lookup names REF fields to expand;
// embed_depth bounds the expansion.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id, err := pathID(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	var lookup []string
	if raw := r.URL.Query().Get("lookup"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				lookup = append(lookup, field)
			}
		}
	}
	embedDepth := 0
	if raw := r.URL.Query().Get("embed_depth"); raw != "" {
		if d, err := strconv.Atoi(raw); err == nil && d > 0 {
			embedDepth = d
		}
	}

	doc, err := h.documents.Get(entity, id, lookup, embedDepth)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondResource(w, r, http.StatusOK, entity, doc, nil)
}

// Replace handles PUT /{entity}/{id}.
func (h *EntityHandler) Replace(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id, err := pathID(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	doc, err := parseDocument(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	if err := h.documents.Replace(entity, id, doc); err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondResource(w, r, http.StatusOK, entity, map[string]interface{}{
		"message": "Document updated",
		"id":      id,
	}, nil)
}

// Patch handles PATCH /{entity}/{id} and reports which fields changed.
func (h *EntityHandler) Patch(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id, err := pathID(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	patch, err := parseDocument(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	updated, err := h.documents.Patch(entity, id, patch)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	if updated == nil {
		updated = []string{}
	}
	common.RespondResource(w, r, http.StatusOK, entity, map[string]interface{}{
		"message":        "Document updated",
		"id":             id,
		"updated_fields": updated,
	}, nil)
}

// Delete handles DELETE /{entity}/{id}. The response lists every deleted
// node identifier; without cascading that is just the target.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	id, err := pathID(r)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	deleted, err := h.documents.Delete(entity, id)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	h.logger.Info("Document deleted",
		zap.String("entity", entity),
		zap.Int64("id", id),
		zap.Int("cascaded", len(deleted)-1),
	)
	common.RespondResource(w, r, http.StatusOK, entity, map[string]interface{}{
		"message":          "Document deleted",
		"cascaded_deletes": deleted,
	}, nil)
}

// List handles GET /{entity}/list.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	params := common.ExtractPaginationParams(r, h.pageSize)

	page, err := h.documents.List(entity, params)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondCollection(w, r, http.StatusOK, entity, page, nil)
}

// Search handles GET /{entity}/search?query=...&field=.... The shorter q is
// accepted as an alias.
func (h *EntityHandler) Search(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	params := common.ExtractPaginationParams(r, h.pageSize)

	query := r.URL.Query().Get("query")
	if query == "" {
		query = r.URL.Query().Get("q")
	}

	page, err := h.documents.Search(entity, query, r.URL.Query().Get("field"), params)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondCollection(w, r, http.StatusOK, entity, page, nil)
}
