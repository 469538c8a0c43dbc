package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	httpapi "github.com/primebarber/site-backend/internal/api/http"
	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/contentgen"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

// SiteService is the dual-write coordinator.
type SiteService interface {
	Save(ctx context.Context, site domain.SiteInstance, sess auth.Session) (domain.SiteInstance, error)
	Update(ctx context.Context, sess auth.Session, id string, edits ...domain.Edit) (domain.SiteInstance, error)
	LoadAll(ctx context.Context, sess auth.Session) []domain.SiteInstance
	Get(ctx context.Context, sess auth.Session, id string) (domain.SiteInstance, error)
}

type Generator interface {
	Generate(ctx context.Context, in domain.ShopInputs) (domain.WebsiteData, error)
}

type SignedUploader interface {
	SignedUploadURLs(ctx context.Context, siteID string, filenames []string) ([]media.SignedUpload, error)
}

type Handler struct {
	sites   SiteService
	gen     Generator
	uploads SignedUploader
	newID   func() string
}

func New(sites SiteService, gen Generator, uploads SignedUploader) *Handler {
	return &Handler{sites: sites, gen: gen, uploads: uploads, newID: uuid.NewString}
}

type generateRequest struct {
	ShopName string `json:"shopName" binding:"required"`
	Area     string `json:"area" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
}

// Generate creates a new draft site from generated content.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "shopName, area and phone are required")
		return
	}
	inputs := domain.ShopInputs{ShopName: req.ShopName, Area: req.Area, Phone: req.Phone}

	data, err := h.gen.Generate(c.Request.Context(), inputs)
	if err != nil {
		logging.From(c.Request.Context()).Warnw("generation failed", zap.Error(err))
		if errors.Is(err, contentgen.ErrNotConfigured) {
			httpapi.Fail(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		httpapi.Fail(c, http.StatusBadGateway, contentgen.ErrFailed.Error())
		return
	}

	site, err := h.sites.Save(c.Request.Context(), domain.NewSite(h.newID(), inputs, data), auth.SessionOf(c))
	if err != nil {
		httpapi.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "site": site})
}

// List returns the reconciled dashboard view.
func (h *Handler) List(c *gin.Context) {
	sites := h.sites.LoadAll(c.Request.Context(), auth.SessionOf(c))
	c.JSON(http.StatusOK, gin.H{"ok": true, "sites": sites})
}

func (h *Handler) Get(c *gin.Context) {
	site, err := h.sites.Get(c.Request.Context(), auth.SessionOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "site": site})
}

// Put replaces the whole record. The path id wins over any id in the body.
func (h *Handler) Put(c *gin.Context) {
	var site domain.SiteInstance
	if err := c.ShouldBindJSON(&site); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	site.ID = c.Param("id")
	if site.DeploymentStatus != "" && !site.DeploymentStatus.Valid() {
		httpapi.Fail(c, http.StatusBadRequest, "invalid deploymentStatus")
		return
	}

	saved, err := h.sites.Save(c.Request.Context(), site, auth.SessionOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "site": saved})
}

type fieldEdit struct {
	Field string `json:"field" binding:"required"`
	Index *int   `json:"index"`
	Value string `json:"value"`
}

type patchRequest struct {
	Edits []fieldEdit `json:"edits" binding:"required,min=1,dive"`
}

// Patch applies typed field edits, e.g. {"edits":[{"field":"heroHeading","value":"..."}]}.
func (h *Handler) Patch(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "at least one edit is required")
		return
	}

	edits := make([]domain.Edit, 0, len(req.Edits))
	for _, e := range req.Edits {
		edit, err := domain.EditFor(e.Field, e.Index, e.Value)
		if err != nil {
			httpapi.Fail(c, http.StatusBadRequest, err.Error())
			return
		}
		edits = append(edits, edit)
	}

	saved, err := h.sites.Update(c.Request.Context(), auth.SessionOf(c), c.Param("id"), edits...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "site": saved})
}

type signedURLsRequest struct {
	SiteID    string   `json:"siteId" binding:"required"`
	Filenames []string `json:"filenames" binding:"required,min=1,max=16"`
}

// SignedURLs issues direct-upload URLs for a site's images.
func (h *Handler) SignedURLs(c *gin.Context) {
	var req signedURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "siteId and filenames are required")
		return
	}
	urls, err := h.uploads.SignedUploadURLs(c.Request.Context(), req.SiteID, req.Filenames)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			httpapi.Fail(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		httpapi.Fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "uploads": urls})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSiteNotFound):
		httpapi.Fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidSiteID), errors.Is(err, domain.ErrInvalidEdit):
		httpapi.Fail(c, http.StatusBadRequest, err.Error())
	default:
		httpapi.Fail(c, http.StatusInternalServerError, err.Error())
	}
}
