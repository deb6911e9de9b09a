package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/pkg/db/pagination"
)

// ListCheckouts serves the merchant dashboard's checkout table.
func (s *Server) ListCheckouts(c *gin.Context) {
	shop := strings.TrimSpace(c.Param("shop"))
	if shop == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	filter := checkoutdomain.ListCheckoutFilter{
		Status: checkoutdomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	page := parsePagination(c)

	checkouts, err := s.checkoutRepo.ListByShop(c.Request.Context(), s.db, shop, filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(checkouts, page.PageSize, func(checkout *checkoutdomain.Checkout) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        checkout.ID.String(),
			CreatedAt: checkout.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})
	if len(checkouts) > page.PageSize {
		checkouts = checkouts[:page.PageSize]
	}

	c.JSON(http.StatusOK, gin.H{
		"checkouts": checkouts,
		"page_info": pageInfo,
	})
}

// ListCallJobs serves the merchant dashboard's call history table.
func (s *Server) ListCallJobs(c *gin.Context) {
	shop := strings.TrimSpace(c.Param("shop"))
	if shop == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	page := parsePagination(c)
	jobs, err := s.callJobs.ListByShop(c.Request.Context(), s.db, shop, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(jobs, page.PageSize, func(job *calljobdomain.CallJob) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        job.ID.String(),
			CreatedAt: job.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})
	if len(jobs) > page.PageSize {
		jobs = jobs[:page.PageSize]
	}

	c.JSON(http.StatusOK, gin.H{
		"call_jobs": jobs,
		"page_info": pageInfo,
	})
}
