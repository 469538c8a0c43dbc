package http

import (
	"github.com/gin-gonic/gin"

	"github.com/primebarber/site-backend/internal/auth/middleware"
)

func (h *Handler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/publish")
	p.POST("/claim", h.Claim)
	p.POST("/republish", middleware.RequireUser(), h.Republish)
	p.GET("/attempts/:id", h.GetAttempt)
	p.GET("/attempts/:id/stream", h.StreamAttempt)
}
