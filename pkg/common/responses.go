package common

import (
	"encoding/json"
	"net/http"

	"rserv/pkg/errors"
)

// Link is a single hypermedia reference.
type Link struct {
	Href string `json:"href"`
}

// Links maps relation names to references. Every response carries at least
// the "self" relation.
type Links map[string]Link

// ResourceResponse is the envelope for a single resource.
type ResourceResponse struct {
	ResourceType string      `json:"resource_type"`
	Data         interface{} `json:"data"`
	Links        Links       `json:"_links"`
}

// CollectionResponse is the envelope for a collection of resources.
type CollectionResponse struct {
	ResourceType string      `json:"resource_type"`
	Items        interface{} `json:"items"`
	Links        Links       `json:"_links"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the envelope for errors.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
	Links Links     `json:"_links"`
}

func selfLinks(r *http.Request, extra Links) Links {
	links := Links{"self": {Href: r.URL.String()}}
	for rel, link := range extra {
		links[rel] = link
	}
	return links
}

// RespondJSON sends a bare JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondResource sends a resource envelope with a self link plus any extra
// relations.
func RespondResource(w http.ResponseWriter, r *http.Request, status int, resourceType string, data interface{}, extra Links) {
	RespondJSON(w, status, ResourceResponse{
		ResourceType: resourceType,
		Data:         data,
		Links:        selfLinks(r, extra),
	})
}

// RespondCollection sends a collection envelope.
func RespondCollection(w http.ResponseWriter, r *http.Request, status int, resourceType string, items interface{}, extra Links) {
	RespondJSON(w, status, CollectionResponse{
		ResourceType: resourceType + "_collection",
		Items:        items,
		Links:        selfLinks(r, extra),
	})
}

// RespondError sends an error envelope.
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]interface{}) {
	RespondJSON(w, status, ErrorResponse{
		Error: ErrorBody{
			Message:    message,
			StatusCode: status,
			Details:    details,
		},
		Links: selfLinks(r, nil),
	})
}

// RespondAppError maps an error from the service layer onto the error
// envelope. Unrecognised errors are surfaced as a generic 500.
func RespondAppError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr := errors.GetAppError(err); appErr != nil {
		RespondError(w, r, appErr.HTTPStatus, appErr.Message, appErr.Details)
		return
	}
	RespondError(w, r, http.StatusInternalServerError, "An unexpected error occurred", nil)
}

// ParseJSONBody parses JSON request body with size limit
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
