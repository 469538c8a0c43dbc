package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/auth/middleware"
	"github.com/primebarber/site-backend/internal/contentgen"
	"github.com/primebarber/site-backend/internal/detached"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/sites/domain"
	"github.com/primebarber/site-backend/internal/sites/drafts"
	"github.com/primebarber/site-backend/internal/sites/service"
)

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(_ context.Context, in domain.ShopInputs) (domain.WebsiteData, error) {
	if f.err != nil {
		return domain.WebsiteData{}, f.err
	}
	return domain.WebsiteData{
		ShopName: in.ShopName,
		Hero:     domain.Hero{Heading: "Sharp", ImageURL: "data:image/png;base64,AAAA"},
		About:    domain.About{Description: []string{"one"}},
		Gallery:  []string{"data:image/png;base64,BBBB"},
	}, nil
}

type fakeSigner struct{}

func (fakeSigner) SignedUploadURLs(_ context.Context, siteID string, names []string) ([]media.SignedUpload, error) {
	out := make([]media.SignedUpload, 0, len(names))
	for _, n := range names {
		out = append(out, media.SignedUpload{Filename: n, UploadURL: "https://signed/" + siteID + "/" + n})
	}
	return out, nil
}

func newTestRouter(t *testing.T, gen Generator, uploads SignedUploader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := service.NewSites(drafts.NewRedisStore(client), nil, detached.NewRunner(time.Second))

	h := New(svc, gen, uploads)
	h.newID = func() string { return "site-1" }

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Session(middleware.Options{TrustUserHeader: true}))
	h.Register(api)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Id", "laptop")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type siteResponse struct {
	OK    bool                  `json:"ok"`
	Error string                `json:"error"`
	Site  domain.SiteInstance   `json:"site"`
	Sites []domain.SiteInstance `json:"sites"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) siteResponse {
	t.Helper()
	var out siteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGenerateThenEdit(t *testing.T) {
	r := newTestRouter(t, fakeGenerator{}, fakeSigner{})

	w := do(r, http.MethodPost, "/api/v1/sites/generate", `{"shopName":"Joe's","area":"Leeds","phone":"0113"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w).Site
	assert.Equal(t, "site-1", created.ID)
	assert.Equal(t, domain.StatusDraft, created.DeploymentStatus)
	assert.Positive(t, created.LastSaved)

	w = do(r, http.MethodPatch, "/api/v1/sites/site-1",
		`{"edits":[{"field":"heroHeading","value":"Sharper"},{"field":"aboutParagraph","index":0,"value":"uno"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode(t, w).Site
	assert.Equal(t, "Sharper", edited.Data.Hero.Heading)
	assert.Equal(t, []string{"uno"}, edited.Data.About.Description)
	assert.Greater(t, edited.LastSaved, created.LastSaved)

	w = do(r, http.MethodGet, "/api/v1/sites", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w).Sites
	require.Len(t, list, 1)
	assert.Equal(t, "Sharper", list[0].Data.Hero.Heading)
}

func TestPatch_RejectsUnknownField(t *testing.T) {
	r := newTestRouter(t, fakeGenerator{}, fakeSigner{})
	do(r, http.MethodPost, "/api/v1/sites/generate", `{"shopName":"Joe's","area":"Leeds","phone":"0113"}`)

	w := do(r, http.MethodPatch, "/api/v1/sites/site-1", `{"edits":[{"field":"hero.imageUrl","value":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "invalid edit")
}

func TestGetAndPut(t *testing.T) {
	r := newTestRouter(t, fakeGenerator{}, fakeSigner{})

	w := do(r, http.MethodGet, "/api/v1/sites/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPut, "/api/v1/sites/site-9", `{"id":"ignored","data":{"shopName":"Put"},"deploymentStatus":"draft"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "site-9", decode(t, w).Site.ID)

	w = do(r, http.MethodGet, "/api/v1/sites/site-9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Put", decode(t, w).Site.Data.ShopName)

	w = do(r, http.MethodPut, "/api/v1/sites/site-9", `{"deploymentStatus":"live"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_Failures(t *testing.T) {
	r := newTestRouter(t, fakeGenerator{err: errors.New("upstream 500")}, fakeSigner{})
	w := do(r, http.MethodPost, "/api/v1/sites/generate", `{"shopName":"Joe's","area":"Leeds","phone":"0113"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "generation failed", decode(t, w).Error)

	w = do(r, http.MethodPost, "/api/v1/sites/generate", `{"shopName":"Joe's"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newTestRouter(t, fakeGenerator{err: contentgen.ErrNotConfigured}, fakeSigner{})
	w = do(r, http.MethodPost, "/api/v1/sites/generate", `{"shopName":"Joe's","area":"Leeds","phone":"0113"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSignedURLs(t *testing.T) {
	r := newTestRouter(t, fakeGenerator{}, fakeSigner{})
	w := do(r, http.MethodPost, "/api/v1/uploads/signed-urls", `{"siteId":"site-1","filenames":["hero.jpg"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Uploads []media.SignedUpload `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Uploads, 1)
	assert.Equal(t, "https://signed/site-1/hero.jpg", resp.Uploads[0].UploadURL)

	w = do(r, http.MethodPost, "/api/v1/uploads/signed-urls", `{"siteId":"site-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
