package deploy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/primebarber/site-backend/config"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

type fakeVercel struct {
	url      string
	mu       sync.Mutex
	requests []recorded
	handlers map[string]http.HandlerFunc
}

func newFakeVercel(t *testing.T) (*fakeVercel, *Client) {
	f := &fakeVercel{handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), body})
		h := f.handlers[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"no route"}}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	f.url = srv.URL

	c := NewClient(config.VercelConfig{Token: "tok", BaseURL: srv.URL}, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	return f, c
}

func (f *fakeVercel) on(route string, status int, body string) {
	f.handlers[route] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeVercel) find(method, path string) *recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return &f.requests[i]
		}
	}
	return nil
}

func TestDeploy_SendsExactlyTwoFiles(t *testing.T) {
	f, c := newFakeVercel(t)
	f.on("POST /v13/deployments", 200, `{"id":"dpl_1","url":"joes-abc123.vercel.app","alias":["joes-barber-co.vercel.app"],"inspectorUrl":"https://vercel.com/i/1"}`)
	f.on("PATCH /v9/projects/joes-barber-co", 200, `{}`)

	inline := "data:image/jpeg;base64," + strings.Repeat("A", 120)
	d, err := c.Deploy(context.Background(), "Joe's Barber & Co.", Files{
		HTML: `<img src="https://cdn/hero.jpg"><img src="` + inline + `">`,
		CSS:  "body{}",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://joes-barber-co.vercel.app", d.URL)
	assert.Equal(t, "dpl_1", d.ID)
	assert.Equal(t, "joes-barber-co", d.Project)

	req := f.find(http.MethodPost, "/v13/deployments")
	require.NotNil(t, req)
	assert.Equal(t, "Bearer tok", req.Auth)

	var sent deployRequest
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.Equal(t, "joes-barber-co", sent.Name)
	assert.Equal(t, "production", sent.Target)
	require.Len(t, sent.Files, 2)
	assert.Equal(t, "index.html", sent.Files[0].File)
	assert.Equal(t, "styles.css", sent.Files[1].File)

	html, err := base64.StdEncoding.DecodeString(sent.Files[0].Data)
	require.NoError(t, err)
	assert.NotContains(t, string(html), "base64,")
	assert.Contains(t, string(html), "https://cdn/hero.jpg")

	patch := f.find(http.MethodPatch, "/v9/projects/joes-barber-co")
	require.NotNil(t, patch)
	assert.JSONEq(t, `{"passwordProtection":null,"vercelAuthentication":null}`, string(patch.Body))
}

func TestDeploy_URLPreference(t *testing.T) {
	cases := []struct {
		resp deployResponse
		want string
	}{
		{deployResponse{URL: "h.vercel.app", Alias: []string{"a.vercel.app"}, InspectorURL: "https://i"}, "https://a.vercel.app"},
		{deployResponse{URL: "h.vercel.app", InspectorURL: "https://i"}, "https://h.vercel.app"},
		{deployResponse{InspectorURL: "https://i"}, "https://i"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, preferredURL(tc.resp))
	}
}

func TestDeploy_ProtectionFailureIsNonFatal(t *testing.T) {
	f, c := newFakeVercel(t)
	f.on("POST /v13/deployments", 200, `{"id":"dpl_2","url":"x.vercel.app"}`)
	f.on("PATCH /v9/projects/shop", 403, `{"error":{"code":"forbidden","message":"nope"}}`)

	d, err := c.Deploy(context.Background(), "Shop", Files{HTML: "<html></html>"})
	require.NoError(t, err)
	assert.Equal(t, "https://x.vercel.app", d.URL)

	var sent deployRequest
	require.NoError(t, json.Unmarshal(f.find(http.MethodPost, "/v13/deployments").Body, &sent))
	css, _ := base64.StdEncoding.DecodeString(sent.Files[1].Data)
	assert.Equal(t, defaultCSS, string(css))
}

func TestDeploy_ProviderError(t *testing.T) {
	f, c := newFakeVercel(t)
	f.on("POST /v13/deployments", 400, `{"error":{"code":"bad_request","message":"files too large"}}`)

	_, err := c.Deploy(context.Background(), "Shop", Files{HTML: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "files too large", apiErr.Message)
	assert.Nil(t, f.find(http.MethodPatch, "/v9/projects/shop"))
}

func TestDeploy_NotConfigured(t *testing.T) {
	c := NewClient(config.VercelConfig{BaseURL: "http://unused"})
	_, err := c.Deploy(context.Background(), "Shop", Files{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDomains(t *testing.T) {
	f, c := newFakeVercel(t)
	f.on("GET /v5/domains/joes.com/check", 200, `{"available":true}`)
	f.on("GET /v1/registrar/domains/joes.com/price", 200, `{"price":12}`)
	f.on("POST /v1/registrar/domains/joes.com/buy", 200, `{"orderId":"ord_9"}`)
	f.on("POST /v10/projects/joes/domains", 200, `{}`)
	ctx := context.Background()

	ok, err := c.CheckDomain(ctx, "joes.com")
	require.NoError(t, err)
	assert.True(t, ok)

	price, renewal, err := c.DomainPrice(ctx, "joes.com")
	require.NoError(t, err)
	assert.Equal(t, 12.0, price)
	assert.Equal(t, 12.0, renewal)

	order, err := c.BuyDomain(ctx, "joes.com")
	require.NoError(t, err)
	assert.Equal(t, "ord_9", order)
	assert.JSONEq(t, `{"autoRenew":true,"years":1}`, string(f.find(http.MethodPost, "/v1/registrar/domains/joes.com/buy").Body))

	require.NoError(t, c.AddProjectDomain(ctx, "joes", "joes.com"))
	assert.JSONEq(t, `{"name":"joes.com"}`, string(f.find(http.MethodPost, "/v10/projects/joes/domains").Body))
}

func TestClient_TeamScope(t *testing.T) {
	f, _ := newFakeVercel(t)
	f.on("GET /v5/domains/a.com/check", 200, `{"available":false}`)

	c := NewClient(config.VercelConfig{Token: "tok", BaseURL: f.url, TeamID: "team_1"}, WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	ok, err := c.CheckDomain(context.Background(), "a.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "teamId=team_1", f.find(http.MethodGet, "/v5/domains/a.com/check").Query)
}
