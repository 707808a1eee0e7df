package api

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/models"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100

	// maxPage keeps (page-1)*per_page inside an int.
	maxPage = math.MaxInt / maxPerPage
)

// pagination reads ?page and ?per_page. Missing values default to page 1 of
// 50; per_page is capped at 100.
func pagination(c *gin.Context) (models.Pagination, bool) {
	p := models.Pagination{Page: 1, PerPage: defaultPerPage}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPage {
			badRequest(c, "invalid 'page' parameter")
			return p, false
		}
		p.Page = n
	}
	if raw := c.Query("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "invalid 'per_page' parameter")
			return p, false
		}
		p.PerPage = min(n, maxPerPage)
	}
	return p, true
}
