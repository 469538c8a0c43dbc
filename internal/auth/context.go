package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultDeviceID = "default"

	HeaderDeviceID = "X-Device-Id"
	HeaderUserID   = "X-User-Id"

	ctxSession = "session"
)

// Session identifies who is acting and from which device. An empty UserID
// means the caller is not signed in; such sessions still own a device-local
// draft namespace.
type Session struct {
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"deviceId"`
}

func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.UserID) != ""
}

// Device returns the draft namespace, defaulting to DefaultDeviceID.
func (s Session) Device() string {
	if d := strings.TrimSpace(s.DeviceID); d != "" {
		return d
	}
	return DefaultDeviceID
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored in ctx, or an anonymous session.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Session{DeviceID: DefaultDeviceID}
}

// SessionOf reads the session set by the auth middleware.
func SessionOf(c *gin.Context) Session {
	if v, ok := c.Get(ctxSession); ok {
		if s, ok := v.(Session); ok {
			return s
		}
	}
	return FromContext(c.Request.Context())
}

// SetSession stores s on both the gin context and the request context.
func SetSession(c *gin.Context, s Session) {
	c.Set(ctxSession, s)
	c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
}
