package api

import (
	"net/http"
	"strconv"
)

// Page is the parsed page/limit pair of a list request.
type Page struct {
	Page   int
	Limit  int
	Offset int
}

// Paginated wraps a list response with its paging metadata.
type Paginated struct {
	Success    bool     `json:"success"`
	Data       any      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// PageMeta describes where a page sits in the full result.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

// ParsePagination reads ?page= and ?limit=, clamping limit to max.
func ParsePagination(r *http.Request, defaultLimit, max int) Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > max {
		limit = max
	}
	return Page{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// NewPaginatedResponse builds the response for data given the total count.
func NewPaginatedResponse(data any, p Page, total int64) Paginated {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	if pages < 1 {
		pages = 1
	}
	return Paginated{
		Success: true,
		Data:    data,
		Pagination: PageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Page < pages,
		},
	}
}
