package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"rserv/application/services"
	"rserv/infrastructure/fulltext"
	"rserv/pkg/common"
	"rserv/pkg/errors"
	"rserv/pkg/utils"
)

// SearchHandler serves the cross-entity full-text search endpoint.
type SearchHandler struct {
	documents *services.DocumentService
	logger    *zap.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(documents *services.DocumentService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{documents: documents, logger: logger}
}

// FulltextRequest carries the search text and an optional result cap.
type FulltextRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"omitempty,gt=0,lte=100"`
}

// Fulltext handles POST /search.
func (h *SearchHandler) Fulltext(w http.ResponseWriter, r *http.Request) {
	var req FulltextRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	matches, err := h.documents.FulltextSearch(req.Query, req.Limit)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	if matches == nil {
		matches = []fulltext.Match{}
	}
	common.RespondCollection(w, r, http.StatusOK, "search_result", matches, nil)
}
