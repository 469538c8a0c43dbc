package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/auth/middleware"
	"github.com/primebarber/site-backend/internal/publish"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

const attemptID = "6f1c9a52-3c1e-4a6e-9a57-0c2f3d1b8e01"

type fakeRunner struct {
	res  publish.Result
	last publish.Request
}

func (f *fakeRunner) Run(_ context.Context, req publish.Request) publish.Result {
	f.last = req
	return f.res
}

func newRouter(t *testing.T, runner Runner) (*gin.Engine, *publish.RedisAttempts) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	attempts := publish.NewRedisAttempts(client)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Session(middleware.Options{TrustUserHeader: true}))
	New(runner, attempts).Register(api)
	return r, attempts
}

func send(r http.Handler, method, path, body, user string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestClaim(t *testing.T) {
	runner := &fakeRunner{res: publish.Result{AttemptID: attemptID, URL: "https://joes.vercel.app", Ticks: 15}}
	r, _ := newRouter(t, runner)

	w, body := send(r, http.MethodPost, "/api/v1/publish/claim",
		`{"sessionId":"cs_1","siteId":"site-1","attemptId":"`+attemptID+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://joes.vercel.app", body["url"])
	assert.Equal(t, float64(15), body["ticks"])

	assert.Equal(t, publish.FlowClaim, runner.last.Flow)
	assert.Equal(t, "cs_1", runner.last.SessionID)
	assert.Equal(t, attemptID, runner.last.AttemptID)
	assert.Equal(t, "test-agent", runner.last.UserAgent)
	assert.Equal(t, "203.0.113.9", runner.last.ClientIP)
	assert.False(t, runner.last.Session.Authenticated())
}

func TestClaim_BadInput(t *testing.T) {
	r, _ := newRouter(t, &fakeRunner{})

	w, _ := send(r, http.MethodPost, "/api/v1/publish/claim", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = send(r, http.MethodPost, "/api/v1/publish/claim", `{"sessionId":"cs_1","attemptId":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaim_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: Payment status: unpaid", publish.ErrPaymentNotVerified), http.StatusPaymentRequired},
		{fmt.Errorf("load site: %w", domain.ErrSiteNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: requested site-2", publish.ErrSiteMismatch), http.StatusForbidden},
		{domain.ErrInvalidSiteID, http.StatusBadRequest},
		{fmt.Errorf("deploy: boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		r, _ := newRouter(t, &fakeRunner{res: publish.Result{AttemptID: attemptID, Err: tc.err}})
		w, body := send(r, http.MethodPost, "/api/v1/publish/claim", `{"sessionId":"cs_1"}`, "")
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, attemptID, body["attemptId"])
	}
}

func TestRepublish_RequiresUser(t *testing.T) {
	runner := &fakeRunner{res: publish.Result{AttemptID: attemptID, URL: "https://joes.vercel.app"}}
	r, _ := newRouter(t, runner)

	w, _ := send(r, http.MethodPost, "/api/v1/publish/republish", `{"siteId":"site-1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = send(r, http.MethodPost, "/api/v1/publish/republish", `{"siteId":"site-1"}`, "u1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, publish.FlowRepublish, runner.last.Flow)
	assert.Equal(t, "u1", runner.last.Session.UserID)
}

func TestGetAttempt(t *testing.T) {
	r, attempts := newRouter(t, &fakeRunner{})
	require.NoError(t, attempts.Save(context.Background(), publish.Attempt{
		ID: attemptID, Flow: publish.FlowRepublish, UserID: "u1", Phase: publish.PhaseCountdown, Remaining: 2,
	}))

	w, body := send(r, http.MethodGet, "/api/v1/publish/attempts/"+attemptID, "", "u1")
	require.Equal(t, http.StatusOK, w.Code)
	attempt := body["attempt"].(map[string]any)
	assert.Equal(t, "countdown", attempt["phase"])

	w, _ = send(r, http.MethodGet, "/api/v1/publish/attempts/"+attemptID, "", "u2")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = send(r, http.MethodGet, "/api/v1/publish/attempts/0b6f0d5e-1111-4222-8333-444455556666", "", "u1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = send(r, http.MethodGet, "/api/v1/publish/attempts/not-a-uuid", "", "u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func readEvent(t *testing.T, rd *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestStreamAttempt(t *testing.T) {
	r, attempts := newRouter(t, &fakeRunner{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/publish/attempts/"+attemptID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, rd)
	require.Equal(t, "pending", event)

	require.NoError(t, attempts.Save(ctx, publish.Attempt{ID: attemptID, Flow: publish.FlowClaim, Phase: publish.PhaseCountdown, Remaining: 3}))
	require.NoError(t, attempts.Save(ctx, publish.Attempt{ID: attemptID, Flow: publish.FlowClaim, Phase: publish.PhaseSuccess, URL: "https://joes.vercel.app"}))

	event, data := readEvent(t, rd)
	assert.Equal(t, "update", event)
	assert.Contains(t, data, `"phase":"countdown"`)

	event, data = readEvent(t, rd)
	assert.Equal(t, "update", event)
	assert.Contains(t, data, `"url":"https://joes.vercel.app"`)

	_, err = rd.ReadString('\n')
	assert.Error(t, err, "stream ends after a terminal phase")
}

func TestStreamAttempt_AlreadyFinished(t *testing.T) {
	r, attempts := newRouter(t, &fakeRunner{})
	require.NoError(t, attempts.Save(context.Background(), publish.Attempt{ID: attemptID, Phase: publish.PhaseError, Error: "deploy failed"}))

	w, _ := send(r, http.MethodGet, "/api/v1/publish/attempts/"+attemptID+"/stream", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: initial")
	assert.Contains(t, w.Body.String(), "deploy failed")
	assert.NotContains(t, w.Body.String(), "event: update")
}
