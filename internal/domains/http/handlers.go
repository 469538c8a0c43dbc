package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/primebarber/site-backend/internal/api/http"
	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/domains"
	"github.com/primebarber/site-backend/internal/logging"
)

type DomainService interface {
	Check(ctx context.Context, name string) (domains.Availability, error)
	Checkout(ctx context.Context, req billing.DomainCheckout, origin string) (string, error)
	Complete(ctx context.Context, sessionID string, sess auth.Session) (domains.Order, error)
}

type Handler struct {
	svc DomainService
}

func New(svc DomainService) *Handler {
	return &Handler{svc: svc}
}

type checkRequest struct {
	Domain string `json:"domain" binding:"required"`
}

func (h *Handler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "Missing domain")
		return
	}
	a, err := h.svc.Check(c.Request.Context(), req.Domain)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) Checkout(c *gin.Context) {
	var req billing.DomainCheckout
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "Missing required fields: domain, vercelPrice, siteId, projectName")
		return
	}
	url, err := h.svc.Checkout(c.Request.Context(), req, httpapi.Origin(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": url})
}

type completeRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// Complete registers a paid-for domain.
func (h *Handler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "Missing sessionId")
		return
	}
	order, err := h.svc.Complete(c.Request.Context(), req.SessionID, auth.SessionOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "success": true, "domain": order.Domain, "orderId": order.OrderID, "testMode": order.TestMode})
}

func fail(c *gin.Context, err error) {
	logging.From(c.Request.Context()).Warnw("domain request failed", zap.Error(err))

	var apiErr *billing.APIError
	switch {
	case errors.Is(err, billing.ErrNotConfigured), errors.Is(err, deploy.ErrNotConfigured):
		httpapi.Fail(c, http.StatusServiceUnavailable, "Server configuration error: "+err.Error())
	case errors.Is(err, domains.ErrInvalidDomain),
		errors.Is(err, domains.ErrNotPaid),
		errors.Is(err, domains.ErrMissingMetadata),
		errors.Is(err, billing.ErrMissingField):
		httpapi.Fail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		httpapi.Fail(c, http.StatusBadRequest, "Invalid checkout session")
	default:
		httpapi.Fail(c, http.StatusBadGateway, err.Error())
	}
}
