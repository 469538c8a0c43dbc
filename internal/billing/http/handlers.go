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
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/users"
)

type Payments interface {
	billing.Verifier
	CreateHostingCheckout(ctx context.Context, siteID, origin string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Profiles looks up the stored payment customer of a signed-in user.
type Profiles interface {
	Profile(ctx context.Context, firebaseUID string) (users.Profile, error)
}

type Handler struct {
	payments Payments
	profiles Profiles
}

// New builds the billing handlers. profiles may be nil.
func New(payments Payments, profiles Profiles) *Handler {
	return &Handler{payments: payments, profiles: profiles}
}

type checkoutRequest struct {
	SiteID string `json:"siteId" binding:"required"`
}

// Checkout opens a hosting subscription checkout for one site.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "Missing required field: siteId")
		return
	}
	url, err := h.payments.CreateHostingCheckout(c.Request.Context(), req.SiteID, httpapi.Origin(c))
	if err != nil {
		fail(c, err, "Failed to create checkout session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": url})
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

// Verify reports whether a checkout session has been paid. The body always
// carries verified and, when false, a reason.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	_ = c.ShouldBindJSON(&req)

	v, err := h.payments.VerifySession(c.Request.Context(), req.SessionID)
	if err != nil {
		logging.From(c.Request.Context()).Warnw("session verification failed", zap.Error(err))
		status := http.StatusBadRequest
		if errors.Is(err, billing.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
			v.Reason = "Server configuration error"
		}
		c.AbortWithStatusJSON(status, gin.H{"verified": false, "reason": v.Reason})
		return
	}

	resp := gin.H{"verified": v.Paid}
	if v.Paid {
		resp["customerEmail"] = v.CustomerEmail
	} else {
		resp["reason"] = v.Reason
	}
	c.JSON(http.StatusOK, resp)
}

type portalRequest struct {
	CustomerID string `json:"customerId"`
}

// Portal returns a self-service billing URL. Signed-in users may omit the
// customer id and use the one stored on their profile.
func (h *Handler) Portal(c *gin.Context) {
	var req portalRequest
	_ = c.ShouldBindJSON(&req)

	customer := req.CustomerID
	if customer == "" {
		customer = h.storedCustomer(c)
	}
	if customer == "" {
		httpapi.Fail(c, http.StatusBadRequest, "Missing customerId")
		return
	}

	url, err := h.payments.CreatePortalSession(c.Request.Context(), customer, httpapi.Origin(c))
	if err != nil {
		fail(c, err, "Failed to create portal session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": url})
}

func (h *Handler) storedCustomer(c *gin.Context) string {
	sess := auth.SessionOf(c)
	if h.profiles == nil || !sess.Authenticated() {
		return ""
	}
	p, err := h.profiles.Profile(c.Request.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			logging.From(c.Request.Context()).Warnw("profile lookup failed", "user_id", sess.UserID, zap.Error(err))
		}
		return ""
	}
	return p.StripeCustomerID
}

func fail(c *gin.Context, err error, upstreamMsg string) {
	logging.From(c.Request.Context()).Warnw("billing request failed", zap.Error(err))

	var apiErr *billing.APIError
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		httpapi.Fail(c, http.StatusServiceUnavailable, "Server configuration error: "+err.Error())
	case errors.Is(err, billing.ErrMissingField):
		httpapi.Fail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		httpapi.Fail(c, http.StatusBadGateway, upstreamMsg)
	default:
		httpapi.Fail(c, http.StatusBadGateway, err.Error())
	}
}
