package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rserv/domain/document"
	"rserv/domain/graph"
	"rserv/pkg/common"
	"rserv/pkg/errors"
	"rserv/pkg/utils"
)

// GraphHandler serves the analytics endpoints executed directly against the
// overlay. A nil overlay means the feature is disabled and every endpoint
// answers 400.
type GraphHandler struct {
	overlay  *graph.Overlay
	maxDepth int
	logger   *zap.Logger
}

// NewGraphHandler creates a graph handler.
func NewGraphHandler(overlay *graph.Overlay, maxDepth int, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{overlay: overlay, maxDepth: maxDepth, logger: logger}
}

func (h *GraphHandler) snapshot(w http.ResponseWriter, r *http.Request) (*graph.Snapshot, bool) {
	if h.overlay == nil {
		common.RespondAppError(w, r, errors.NewValidationError("the graph overlay is disabled"))
		return nil, false
	}
	return h.overlay.Snapshot(), true
}

func (h *GraphHandler) depthOr(requested int) int {
	if requested <= 0 || requested > h.maxDepth {
		return h.maxDepth
	}
	return requested
}

// GetNode handles GET /graph/nodes/{nodeID}.
func (h *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	nodeID := chi.URLParam(r, "nodeID")
	node, ok := snap.Node(nodeID)
	if !ok {
		common.RespondAppError(w, r, errors.NewNotFoundError("node "+nodeID))
		return
	}
	props := node.Properties
	if props == nil {
		props = document.Document{}
	}
	common.RespondResource(w, r, http.StatusOK, "graph_node", map[string]interface{}{
		"id":         node.ID,
		"type":       node.Type,
		"properties": props,
	}, nil)
}

// SearchNodesRequest selects nodes whose properties equal every given value.
type SearchNodesRequest struct {
	Properties map[string]json.RawMessage `json:"properties" validate:"required"`
}

// SearchNodes handles POST /graph/nodes/search.
func (h *GraphHandler) SearchNodes(w http.ResponseWriter, r *http.Request) {
	var req SearchNodesRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}
	props, err := toValueProps(req.Properties)
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondCollection(w, r, http.StatusOK, "graph_node", snap.SearchNodes(props), nil)
}

// PathRequest names two endpoints and an optional depth bound.
type PathRequest struct {
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	MaxDepth int    `json:"max_depth" validate:"omitempty,gt=0"`
}

// ShortestPath handles POST /graph/shortestPath.
func (h *GraphHandler) ShortestPath(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	path, found := snap.ShortestPath(req.Start, req.End, h.depthOr(req.MaxDepth))
	if !found {
		common.RespondAppError(w, r, errors.NewNotFoundError("path from "+req.Start+" to "+req.End))
		return
	}
	common.RespondResource(w, r, http.StatusOK, "graph_path", map[string]interface{}{
		"path":   path,
		"length": len(path) - 1,
	}, nil)
}

// PathExists handles POST /graph/pathExists.
func (h *GraphHandler) PathExists(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondResource(w, r, http.StatusOK, "graph_path", map[string]interface{}{
		"exists": snap.PathExists(req.Start, req.End, h.depthOr(req.MaxDepth)),
	}, nil)
}

// NodePairRequest names two nodes.
type NodePairRequest struct {
	A string `json:"a" validate:"required"`
	B string `json:"b" validate:"required"`
}

// CommonNeighbors handles POST /graph/commonNeighbors.
func (h *GraphHandler) CommonNeighbors(w http.ResponseWriter, r *http.Request) {
	var req NodePairRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondCollection(w, r, http.StatusOK, "graph_node", snap.CommonNeighbors(req.A, req.B), nil)
}

func parseDirection(raw string) (graph.Direction, error) {
	switch raw {
	case "", "all":
		return graph.DirectionAll, nil
	case "in":
		return graph.DirectionIn, nil
	case "out":
		return graph.DirectionOut, nil
	}
	return "", errors.NewValidationError("invalid direction: " + raw + " (want in, out or all)")
}

// Degree handles GET /graph/nodes/{nodeID}/degree?direction=in|out|all.
func (h *GraphHandler) Degree(w http.ResponseWriter, r *http.Request) {
	direction, err := parseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	nodeID := chi.URLParam(r, "nodeID")
	if _, found := snap.Node(nodeID); !found {
		common.RespondAppError(w, r, errors.NewNotFoundError("node "+nodeID))
		return
	}
	common.RespondResource(w, r, http.StatusOK, "graph_degree", map[string]interface{}{
		"node_id":   nodeID,
		"direction": direction,
		"degree":    snap.Degree(nodeID, direction),
	}, nil)
}

// RelationshipTypes handles GET /graph/nodes/{nodeID}/relationships.
func (h *GraphHandler) RelationshipTypes(w http.ResponseWriter, r *http.Request) {
	direction, err := parseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	nodeID := chi.URLParam(r, "nodeID")
	common.RespondCollection(w, r, http.StatusOK, "relationship_type", snap.RelationshipTypes(nodeID, direction), nil)
}

// AggregateRequest describes a k-hop neighbourhood aggregation.
type AggregateRequest struct {
	NodeID      string `json:"node_id" validate:"required"`
	Depth       int    `json:"depth" validate:"omitempty,gt=0"`
	Property    string `json:"property" validate:"required"`
	Aggregation string `json:"aggregation" validate:"required,oneof=count sum avg"`
}

// NeighborhoodAggregate handles POST /graph/nodes/neighborhoodAggregate.
func (h *GraphHandler) NeighborhoodAggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	value := snap.NeighborhoodAggregate(req.NodeID, h.depthOr(req.Depth), req.Property, req.Aggregation)
	common.RespondResource(w, r, http.StatusOK, "graph_aggregate", map[string]interface{}{
		"node_id":     req.NodeID,
		"property":    req.Property,
		"aggregation": req.Aggregation,
		"value":       value,
	}, nil)
}

// Statistics handles GET /graph/statistics.
func (h *GraphHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondResource(w, r, http.StatusOK, "graph_statistics", snap.Statistics(), nil)
}

// IncomingEdges handles GET /graph/{nodeID}/in.
func (h *GraphHandler) IncomingEdges(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondCollection(w, r, http.StatusOK, "graph_edge", snap.IncomingEdges(chi.URLParam(r, "nodeID")), nil)
}

// OutgoingEdges handles GET /graph/{nodeID}/out.
func (h *GraphHandler) OutgoingEdges(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondCollection(w, r, http.StatusOK, "graph_edge", snap.OutgoingEdges(chi.URLParam(r, "nodeID")), nil)
}

// SubgraphRequest selects a node's k-hop neighbourhood.
type SubgraphRequest struct {
	NodeID string `json:"node_id" validate:"required"`
	Depth  int    `json:"depth" validate:"omitempty,gt=0"`
}

// Subgraph handles POST /graph/subgraph.
func (h *GraphHandler) Subgraph(w http.ResponseWriter, r *http.Request) {
	var req SubgraphRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, r, errors.NewValidationError("invalid request body"))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, r, err)
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	defer snap.Release()

	common.RespondResource(w, r, http.StatusOK, "graph_subgraph", snap.SubgraphAround(req.NodeID, h.depthOr(req.Depth)), nil)
}

// toValueProps decodes raw JSON property constraints into typed values.
func toValueProps(raw map[string]json.RawMessage) (map[string]document.Value, error) {
	props := make(map[string]document.Value, len(raw))
	for key, data := range raw {
		var val document.Value
		if err := json.Unmarshal(data, &val); err != nil {
			return nil, errors.NewValidationError("unsupported property value for " + key)
		}
		props[key] = val
	}
	return props, nil
}
