package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	settingsdomain "github.com/smallbiznis/recova/internal/settings/domain"
)

func (s *Server) GetSettings(c *gin.Context) {
	shop := strings.TrimSpace(c.Param("shop"))
	if shop == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolved, err := s.settingsSvc.ResolveCached(c.Request.Context(), shop)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": resolved})
}

func (s *Server) UpdateSettings(c *gin.Context) {
	shop := strings.TrimSpace(c.Param("shop"))
	if shop == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var params settingsdomain.UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolved, err := s.settingsSvc.Update(c.Request.Context(), shop, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": resolved})
}
