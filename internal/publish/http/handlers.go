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
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/publish"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

type Runner interface {
	Run(ctx context.Context, req publish.Request) publish.Result
}

type Attempts interface {
	Get(ctx context.Context, id string) (publish.Attempt, error)
	Watch(ctx context.Context, id string) (<-chan publish.Attempt, func(), error)
}

type Handler struct {
	runner   Runner
	attempts Attempts
}

// New builds the publish handlers. attempts may be nil, which disables the
// attempt lookup and stream routes.
func New(runner Runner, attempts Attempts) *Handler {
	return &Handler{runner: runner, attempts: attempts}
}

type claimRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	SiteID    string `json:"siteId"`
	AttemptID string `json:"attemptId" binding:"omitempty,uuid"`
}

// Claim publishes a site after its hosting checkout has been paid.
func (h *Handler) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "sessionId is required and attemptId must be a uuid")
		return
	}
	h.run(c, publish.Request{
		Flow:      publish.FlowClaim,
		SessionID: req.SessionID,
		SiteID:    req.SiteID,
		AttemptID: req.AttemptID,
	})
}

type republishRequest struct {
	SiteID    string `json:"siteId" binding:"required"`
	AttemptID string `json:"attemptId" binding:"omitempty,uuid"`
}

// Republish redeploys a site owned by the signed-in user.
func (h *Handler) Republish(c *gin.Context) {
	var req republishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "siteId is required and attemptId must be a uuid")
		return
	}
	h.run(c, publish.Request{
		Flow:      publish.FlowRepublish,
		SiteID:    req.SiteID,
		AttemptID: req.AttemptID,
	})
}

// run detaches the publish from the request: a client that goes away does not
// stop a deploy that is under way, it only loses the response.
func (h *Handler) run(c *gin.Context, req publish.Request) {
	req.Session = auth.SessionOf(c)
	req.UserAgent = c.Request.UserAgent()
	req.ClientIP = httpapi.ClientIP(c)

	reqCtx := c.Request.Context()
	res := h.runner.Run(context.WithoutCancel(reqCtx), req)

	if reqCtx.Err() != nil {
		logging.From(reqCtx).Infow("client left before publish finished",
			"attempt_id", res.AttemptID, "url", res.URL, zap.NamedError("publish_error", res.Err))
		return
	}

	if res.Err != nil {
		c.AbortWithStatusJSON(statusFor(res.Err), gin.H{
			"ok":        false,
			"error":     res.Err.Error(),
			"attemptId": res.AttemptID,
			"url":       res.URL,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"attemptId": res.AttemptID,
		"url":       res.URL,
		"imageUrls": res.ImageURLs,
		"site":      res.Site,
		"ticks":     res.Ticks,
	})
}

// GetAttempt returns the latest snapshot of an attempt.
func (h *Handler) GetAttempt(c *gin.Context) {
	a, ok := h.loadAttempt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "attempt": a})
}

func (h *Handler) loadAttempt(c *gin.Context) (publish.Attempt, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "attempt id must be a uuid")
		return publish.Attempt{}, false
	}
	if h.attempts == nil {
		httpapi.Fail(c, http.StatusServiceUnavailable, "attempt tracking is not configured")
		return publish.Attempt{}, false
	}
	a, err := h.attempts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, publish.ErrAttemptNotFound) {
			httpapi.Fail(c, http.StatusNotFound, err.Error())
		} else {
			httpapi.Fail(c, http.StatusInternalServerError, "failed to get attempt")
		}
		return publish.Attempt{}, false
	}
	if !canView(c, a) {
		httpapi.Fail(c, http.StatusForbidden, "access denied")
		return publish.Attempt{}, false
	}
	return a, true
}

// canView hides attempts that belong to another signed-in user. Anonymous
// claim attempts are visible to anyone holding the id.
func canView(c *gin.Context, a publish.Attempt) bool {
	return a.UserID == "" || a.UserID == auth.SessionOf(c).UserID
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, publish.ErrPaymentNotVerified):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUserRequired):
		return http.StatusUnauthorized
	case errors.Is(err, publish.ErrSiteMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSiteNotFound):
		return http.StatusNotFound
	case errors.Is(err, publish.ErrMissingSession),
		errors.Is(err, domain.ErrInvalidSiteID),
		errors.Is(err, billing.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNotConfigured),
		errors.Is(err, deploy.ErrNotConfigured),
		errors.Is(err, media.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
