package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	httpapi "github.com/primebarber/site-backend/internal/api/http"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/publish"
)

var keepAliveInterval = 15 * time.Second

// StreamAttempt streams an attempt's snapshots using Server-Sent Events until
// it reaches a terminal phase or the client disconnects.
//
// The stream may be opened before the publish request creates the attempt;
// in that case a pending event is sent and the first snapshot arrives as an
// update.
func (h *Handler) StreamAttempt(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.Fail(c, http.StatusBadRequest, "attempt id must be a uuid")
		return
	}
	if h.attempts == nil {
		httpapi.Fail(c, http.StatusServiceUnavailable, "attempt tracking is not configured")
		return
	}
	ctx := c.Request.Context()

	// Subscribe before reading the snapshot so no update falls in between.
	updates, stop, err := h.attempts.Watch(ctx, id)
	if err != nil {
		logging.From(ctx).Warnw("attempt watch failed", "attempt_id", id, zap.Error(err))
		httpapi.Fail(c, http.StatusInternalServerError, "failed to watch attempt")
		return
	}
	defer stop()

	current, err := h.attempts.Get(ctx, id)
	found := err == nil
	if err != nil && !errors.Is(err, publish.ErrAttemptNotFound) {
		httpapi.Fail(c, http.StatusInternalServerError, "failed to get attempt")
		return
	}
	if found && !canView(c, current) {
		httpapi.Fail(c, http.StatusForbidden, "access denied")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		httpapi.Fail(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	send := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	if found {
		send("initial", gin.H{"attempt": current})
		if current.Phase.Terminal() {
			return
		}
	} else {
		send("pending", gin.H{"attemptId": id})
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case a, open := <-updates:
			if !open {
				return
			}
			if !canView(c, a) {
				return
			}
			send("update", gin.H{"attempt": a})
			if a.Phase.Terminal() {
				return
			}
		}
	}
}
