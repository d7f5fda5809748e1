package common

import (
	"net/http"
	"strconv"
	"strings"
)

// MaxPageSize caps per_page regardless of what the client asks for.
const MaxPageSize = 100

// SortKey is a single field/direction pair from the sort parameter.
type SortKey struct {
	Field string
	Desc  bool
}

// PaginationParams represents pagination and sorting parameters
type PaginationParams struct {
	Page    int
	PerPage int
	Sort    []SortKey
}

// ExtractPaginationParams extracts pagination parameters from the request.
// page has a floor of 1; per_page is clamped to [1, MaxPageSize] and defaults
// to the configured page size. The sort parameter is a comma list of
// "field:asc|desc" pairs, defaulting to "id:asc".
func ExtractPaginationParams(r *http.Request, defaultPerPage int) PaginationParams {
	params := PaginationParams{Page: 1, PerPage: defaultPerPage}

	if page := r.URL.Query().Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}

	if perPage := r.URL.Query().Get("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil {
			params.PerPage = pp
		}
	}
	if params.PerPage < 1 {
		params.PerPage = 1
	}
	if params.PerPage > MaxPageSize {
		params.PerPage = MaxPageSize
	}

	sortSpec := r.URL.Query().Get("sort")
	if sortSpec == "" {
		sortSpec = "id:asc"
	}
	params.Sort = ParseSortSpec(sortSpec)

	return params
}

// ParseSortSpec parses "field:asc|desc[,field:asc|desc]". A missing or
// unrecognised direction means ascending.
func ParseSortSpec(spec string) []SortKey {
	var keys []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, order, _ := strings.Cut(part, ":")
		keys = append(keys, SortKey{Field: field, Desc: order == "desc"})
	}
	return keys
}

// SortSpec renders the sort keys back into canonical "field:dir" form.
// Used as part of cache keys so equivalent requests share entries.
func (p PaginationParams) SortSpec() string {
	parts := make([]string, 0, len(p.Sort))
	for _, key := range p.Sort {
		dir := "asc"
		if key.Desc {
			dir = "desc"
		}
		parts = append(parts, key.Field+":"+dir)
	}
	return strings.Join(parts, ",")
}

// Page is one page of a larger result set.
type Page struct {
	Items      interface{} `json:"items"`
	Total      int         `json:"total"`
	PageNum    int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

// CalculateTotalPages calculates total number of pages (at least 1).
func CalculateTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	return pages
}

// PageBounds returns the [start, end) slice bounds for the given page.
func PageBounds(total, page, perPage int) (int, int) {
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return start, end
}
