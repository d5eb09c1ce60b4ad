package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// Params holds page-number pagination parameters.
type Params struct {
	Page  int
	Limit int
}

// New validates a page request. Pages are 1-based.
func New(page, limit int) (Params, error) {
	if page < 1 {
		return Params{}, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if limit < 1 {
		return Params{}, fmt.Errorf("limit must be >= 1, got %d", limit)
	}
	return Params{Page: page, Limit: limit}, nil
}

// FromContext extracts pagination parameters from the echo context.
// Invalid or missing values fall back to page 1 and DefaultLimit.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Offset returns the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset())
}

// TotalPages is the number of pages needed for total rows. An empty
// collection still has one (empty) page.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// HasNext returns true if there is a page after p.
func (p Params) HasNext(totalPages int) bool {
	return p.Page < totalPages
}

// HasPrevious returns true if there is a page before p.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Window returns the [start, end) bounds of the page inside a slice of n items.
func (p Params) Window(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}
