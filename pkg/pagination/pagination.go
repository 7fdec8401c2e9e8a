package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse extracts and validates page/limit from query parameters. Oversized
// limits are clamped to MaxLimit, never rejected. "page_size" is accepted as
// an alias for "limit" for older clients.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limitStr := c.Query("limit")
	if limitStr == "" {
		limitStr = c.DefaultQuery("page_size", strconv.Itoa(DefaultLimit))
	}
	limit, _ := strconv.Atoi(limitStr)

	return FromValues(page, limit)
}

// FromValues clamps raw page/limit values into valid Params.
func FromValues(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
