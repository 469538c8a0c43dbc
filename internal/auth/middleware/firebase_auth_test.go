package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/users"
)

type fakeVerifier struct {
	tokens map[string]auth.Identity
}

func (f fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := f.tokens[token]
	if !ok {
		return auth.Identity{}, errors.New("bad token")
	}
	return id, nil
}

type fakeUsers struct {
	seen []users.UpsertUser
	err  error
}

func (f *fakeUsers) EnsureUser(_ context.Context, u users.UpsertUser) (string, error) {
	f.seen = append(f.seen, u)
	return "row-1", f.err
}

func newRouter(opt Options, extra ...gin.HandlerFunc) (*gin.Engine, *auth.Session) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got auth.Session
	handlers := append([]gin.HandlerFunc{Session(opt)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		got = auth.FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	r.GET("/x", handlers...)
	return r, &got
}

func TestSession_Anonymous(t *testing.T) {
	r, got := newRouter(Options{})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(auth.HeaderDeviceID, "laptop")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, got.Authenticated())
	assert.Equal(t, "laptop", got.Device())
}

func TestSession_VerifiedToken(t *testing.T) {
	fu := &fakeUsers{}
	r, got := newRouter(Options{
		Verifier: fakeVerifier{tokens: map[string]auth.Identity{"good": {UID: "uid-1", Email: "a@b.c"}}},
		Users:    fu,
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "uid-1", got.UserID)
	assert.Equal(t, "a@b.c", got.Email)
	assert.Equal(t, auth.DefaultDeviceID, got.Device())
	require.Len(t, fu.seen, 1)
	assert.Equal(t, "uid-1", fu.seen[0].FirebaseUID)
}

func TestSession_InvalidToken(t *testing.T) {
	r, _ := newRouter(Options{Verifier: fakeVerifier{}})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSession_TrustUserHeader(t *testing.T) {
	r, got := newRouter(Options{TrustUserHeader: true})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(auth.HeaderUserID, "dev-user")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "dev-user", got.UserID)
}

func TestRequireUser(t *testing.T) {
	r, _ := newRouter(Options{}, RequireUser())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
