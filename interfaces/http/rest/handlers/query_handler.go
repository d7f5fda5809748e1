package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rserv/application/queries"
	"rserv/pkg/common"
	"rserv/pkg/errors"
	"rserv/pkg/utils"
)

// QueryHandler serves Sulpher query submission and session inspection.
type QueryHandler struct {
	manager *queries.Manager
	logger  *zap.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(manager *queries.Manager, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{manager: manager, logger: logger}
}

// SubmitRequest carries the query text.
type SubmitRequest struct {
	Query string `json:"query" validate:"required"`
}

// Submit handles POST /graph/query: the query is scheduled and the session
// id returned immediately.
func (h *QueryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	id, err := h.manager.Submit(req.Query)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	h.logger.Info("Graph query submitted", zap.String("query_id", id))
	common.RespondResource(w, r, http.StatusAccepted, "graph_query", map[string]interface{}{
		"query_id": id,
		"status":   queries.StatusPending,
	}, common.Links{
		"status": {Href: "/api/v1/graph/query/" + id},
		"result": {Href: "/api/v1/graph/query/" + id + "/result"},
	})
}

// Status handles GET /graph/query/{queryID}.
func (h *QueryHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "queryID"))
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondResource(w, r, http.StatusOK, "graph_query", session, nil)
}

// Result handles GET /graph/query/{queryID}/result; only completed sessions
// have one.
func (h *QueryHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Result(chi.URLParam(r, "queryID"))
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	common.RespondResource(w, r, http.StatusOK, "graph_query_result", map[string]interface{}{
		"result": result,
	}, nil)
}
