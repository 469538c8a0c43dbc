package http

import "github.com/gin-gonic/gin"

func (h *Handler) Register(rg *gin.RouterGroup) {
	b := rg.Group("/billing")
	b.POST("/checkout", h.Checkout)
	b.POST("/verify", h.Verify)
	b.POST("/portal", h.Portal)
}
