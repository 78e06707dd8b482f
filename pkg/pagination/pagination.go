package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds offset/limit pagination extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset query parameters.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps an offset/limit paginated list.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// Page is 1-based page-number pagination.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps number and size to valid values: number defaults to 1,
// size defaults to DefaultPageSize and is capped at MaxPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// PageFromContext reads page and pageSize (or page_size) query parameters.
func PageFromContext(c echo.Context) Page {
	number, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if size == 0 {
		size, _ = strconv.Atoi(c.QueryParam("page_size"))
	}
	return NewPage(number, size)
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

func (p Page) Limit() int { return p.Size }

// TotalPages is ceil(total/size); zero when there are no results.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PagedResponse wraps one page of results together with the total count
// computed before pagination.
type PagedResponse[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func NewPagedResponse[T any](items []T, total int, p Page) PagedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PagedResponse[T]{
		Items:      items,
		Total:      total,
		Page:       p.Number,
		PageSize:   p.Size,
		TotalPages: TotalPages(total, p.Size),
	}
}
