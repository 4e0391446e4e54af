package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds validated pagination parameters.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New clamps page and limit into range and computes the offset.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Parse reads ?page= and ?limit= from the request. Unparseable values fall
// back to the defaults.
func Parse(c *gin.Context) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = DefaultLimit
	}
	return New(page, limit)
}
