package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/auth/middleware"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/users"
)

type fakePayments struct {
	verification billing.Verification
	err          error
	portalFor    string
	origin       string
}

func (f *fakePayments) VerifySession(context.Context, string) (billing.Verification, error) {
	return f.verification, f.err
}

func (f *fakePayments) CreateHostingCheckout(_ context.Context, siteID, origin string) (string, error) {
	f.origin = origin
	if f.err != nil {
		return "", f.err
	}
	return "https://checkout.test/" + siteID, nil
}

func (f *fakePayments) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	f.portalFor = customerID
	return "https://portal.test/" + customerID, f.err
}

type fakeProfiles map[string]users.Profile

func (f fakeProfiles) Profile(_ context.Context, uid string) (users.Profile, error) {
	p, ok := f[uid]
	if !ok {
		return users.Profile{}, users.ErrNotFound
	}
	return p, nil
}

func router(p Payments, profiles Profiles) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Session(middleware.Options{TrustUserHeader: true}))
	New(p, profiles).Register(api)
	return r
}

func post(r http.Handler, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCheckout(t *testing.T) {
	p := &fakePayments{}
	r := router(p, nil)

	w, body := post(r, "/api/v1/billing/checkout", `{"siteId":"site-1"}`, map[string]string{"Origin": "https://app.test"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://checkout.test/site-1", body["url"])
	assert.Equal(t, "https://app.test", p.origin)

	w, body = post(r, "/api/v1/billing/checkout", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["ok"])
}

func TestCheckout_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{billing.ErrNotConfigured, http.StatusServiceUnavailable},
		{fmt.Errorf("create hosting checkout: %w", &billing.APIError{Status: 400, Message: "bad"}), http.StatusBadGateway},
	}
	for _, tc := range cases {
		w, _ := post(router(&fakePayments{err: tc.err}, nil), "/api/v1/billing/checkout", `{"siteId":"s"}`, nil)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestVerify(t *testing.T) {
	r := router(&fakePayments{verification: billing.Verification{Paid: true, CustomerEmail: "a@b.c"}}, nil)
	w, body := post(r, "/api/v1/billing/verify", `{"sessionId":"cs_1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, "a@b.c", body["customerEmail"])

	r = router(&fakePayments{verification: billing.Verification{Reason: "Payment status: unpaid"}}, nil)
	w, body = post(r, "/api/v1/billing/verify", `{"sessionId":"cs_1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["verified"])
	assert.Equal(t, "Payment status: unpaid", body["reason"])

	r = router(&fakePayments{
		verification: billing.Verification{Reason: "Invalid session"},
		err:          &billing.APIError{Status: 404},
	}, nil)
	w, body = post(r, "/api/v1/billing/verify", `{"sessionId":"cs_x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid session", body["reason"])

	r = router(&fakePayments{err: billing.ErrNotConfigured}, nil)
	w, _ = post(r, "/api/v1/billing/verify", `{"sessionId":"cs_x"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPortal_UsesStoredCustomer(t *testing.T) {
	p := &fakePayments{}
	r := router(p, fakeProfiles{"u1": {FirebaseUID: "u1", StripeCustomerID: "cus_9"}})

	w, body := post(r, "/api/v1/billing/portal", `{}`, map[string]string{"X-User-Id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cus_9", p.portalFor)
	assert.Equal(t, "https://portal.test/cus_9", body["url"])

	w, _ = post(r, "/api/v1/billing/portal", `{"customerId":"cus_explicit"}`, map[string]string{"X-User-Id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cus_explicit", p.portalFor)

	w, _ = post(r, "/api/v1/billing/portal", `{}`, map[string]string{"X-User-Id": "stranger"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = post(r, "/api/v1/billing/portal", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
