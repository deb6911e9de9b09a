package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/recova/pkg/db/pagination"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func parsePagination(c *gin.Context) pagination.Pagination {
	page := pagination.Pagination{
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  defaultPageSize,
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			page.PageSize = size
		}
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}
	return page
}
