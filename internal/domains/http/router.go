package http

import "github.com/gin-gonic/gin"

func (h *Handler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/domains")
	d.POST("/check", h.Check)
	d.POST("/checkout", h.Checkout)
	d.POST("/complete", h.Complete)
}
