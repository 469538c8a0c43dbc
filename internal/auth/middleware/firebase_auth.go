package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/users"
)

// UserEnsurer records a signed-in user on first sight.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, u users.UpsertUser) (string, error)
}

type Options struct {
	// Verifier may be nil, in which case bearer tokens are rejected.
	Verifier auth.TokenVerifier
	Users    UserEnsurer
	// TrustUserHeader accepts X-User-Id without a token. Development only.
	TrustUserHeader bool
}

// Session attaches an auth.Session to every request. Authentication is
// optional: requests without a token continue anonymously.
func Session(opt Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := auth.Session{DeviceID: strings.TrimSpace(c.GetHeader(auth.HeaderDeviceID))}
		if s.DeviceID == "" {
			s.DeviceID = auth.DefaultDeviceID
		}

		if token := extractToken(c); token != "" {
			if opt.Verifier == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication is not configured"})
				return
			}
			id, err := opt.Verifier.Verify(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid token"})
				return
			}
			s.UserID = id.UID
			s.Email = id.Email

			if opt.Users != nil {
				if _, err := opt.Users.EnsureUser(c.Request.Context(), users.UpsertUser{
					FirebaseUID: id.UID,
					Email:       id.Email,
					DisplayName: id.Name,
					PhotoURL:    id.Picture,
				}); err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "ensure user: " + err.Error()})
					return
				}
			}
		} else if opt.TrustUserHeader {
			s.UserID = strings.TrimSpace(c.GetHeader(auth.HeaderUserID))
		}

		auth.SetSession(c, s)
		c.Next()
	}
}

// RequireUser rejects anonymous sessions.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.SessionOf(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "sign in required"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	bearer := c.GetHeader("Authorization")
	if len(bearer) > 7 && strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimSpace(bearer[7:])
	}
	return ""
}
