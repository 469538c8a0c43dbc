package http

import "github.com/gin-gonic/gin"

// Register registers the site and upload routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/sites/generate", h.Generate)
	rg.GET("/sites", h.List)
	rg.GET("/sites/:id", h.Get)
	rg.PUT("/sites/:id", h.Put)
	rg.PATCH("/sites/:id", h.Patch)
	rg.POST("/uploads/signed-urls", h.SignedURLs)
}
