// Package billing creates and verifies hosted checkout sessions with the
// payment provider.
package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
)

const (
	DefaultTimeout = 30 * time.Second

	// HostingCents is the monthly hosting subscription price.
	HostingCents = 1000
	// DomainMarkupUSD is added on top of the registrar price.
	DomainMarkupUSD = 5

	hostingProduct = "Prime Barber AI - Monthly Hosting"

	MetadataType        = "type"
	MetadataSiteID      = "siteId"
	MetadataDomain      = "domain"
	MetadataProjectName = "projectName"

	TypeSiteHosting    = "site_hosting"
	TypeDomainPurchase = "domain_purchase"
)

var (
	ErrNotConfigured = errors.New("payment secret key is not configured")
	ErrMissingField  = errors.New("missing required field")
)

// APIError is a non-2xx answer from the payment provider.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment api status %d", e.Status)
	}
	return fmt.Sprintf("payment api status %d: %s", e.Status, e.Message)
}

// Verifier is the part of the client the publish flow depends on.
type Verifier interface {
	VerifySession(ctx context.Context, sessionID string) (Verification, error)
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	api       *client.API
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(cfg config.StripeConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}

	backend := &stripe.BackendConfig{
		HTTPClient:        c.http,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     zap.S().Desugar().WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Sugar(),
	}
	if c.baseURL != "" {
		backend.URL = stripe.String(c.baseURL)
	}
	c.api = &client.API{}
	c.api.Init(c.secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backend),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: c.http}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: c.http}),
	})
	return c
}

func (c *Client) Configured() bool { return c.secretKey != "" }

// TestMode reports whether the client runs against the provider's sandbox.
func (c *Client) TestMode() bool { return strings.HasPrefix(c.secretKey, "sk_test_") }

// CreateHostingCheckout opens a monthly subscription checkout for siteID and
// returns the hosted page URL. On success the provider redirects back to
// origin with the session id in the stripe_session parameter.
func (c *Client) CreateHostingCheckout(ctx context.Context, siteID, origin string) (string, error) {
	if siteID == "" {
		return "", fmt.Errorf("%w: siteId", ErrMissingField)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(origin + "?stripe_session={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(origin + "?stripe_cancelled=true"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(hostingProduct)},
				UnitAmount:  stripe.Int64(HostingCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(siteID),
	}
	params.AddMetadata(MetadataType, TypeSiteHosting)
	params.AddMetadata(MetadataSiteID, siteID)

	s, err := c.newCheckout(ctx, "hosting_checkout", params)
	if err != nil {
		return "", fmt.Errorf("create hosting checkout: %w", err)
	}
	logging.From(ctx).Infow("hosting checkout created", "site_id", siteID, "session_id", s.ID)
	return s.URL, nil
}

type DomainCheckout struct {
	Domain      string  `json:"domain" binding:"required"`
	PriceUSD    float64 `json:"vercelPrice" binding:"required,gt=0"`
	SiteID      string  `json:"siteId" binding:"required"`
	ProjectName string  `json:"projectName" binding:"required"`
}

// DomainChargeCents is the one-time amount charged for a domain.
func DomainChargeCents(priceUSD float64) int64 {
	return int64(math.Round((priceUSD + DomainMarkupUSD) * 100))
}

// CreateDomainCheckout opens a one-time payment for a domain registration.
func (c *Client) CreateDomainCheckout(ctx context.Context, req DomainCheckout, origin string) (string, error) {
	if req.Domain == "" || req.PriceUSD <= 0 || req.SiteID == "" || req.ProjectName == "" {
		return "", fmt.Errorf("%w: domain, vercelPrice, siteId, projectName", ErrMissingField)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(origin + "?domain_payment=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(origin + "?domain_payment=cancelled"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String("Domain Registration - " + req.Domain)},
				UnitAmount:  stripe.Int64(DomainChargeCents(req.PriceUSD)),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.AddMetadata(MetadataType, TypeDomainPurchase)
	params.AddMetadata(MetadataDomain, req.Domain)
	params.AddMetadata(MetadataProjectName, req.ProjectName)
	params.AddMetadata(MetadataSiteID, req.SiteID)

	s, err := c.newCheckout(ctx, "domain_checkout", params)
	if err != nil {
		return "", fmt.Errorf("create domain checkout: %w", err)
	}
	return s.URL, nil
}

// Verification is the outcome of looking up a checkout session. Reason is
// set whenever Paid is false.
type Verification struct {
	Paid          bool              `json:"verified"`
	Reason        string            `json:"reason,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerID    string            `json:"customerId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// VerifySession reports whether a checkout session has been paid. An unknown
// session is an APIError; an unpaid one is a Verification with a reason.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (Verification, error) {
	if sessionID == "" {
		return Verification{Reason: "Missing sessionId"}, fmt.Errorf("%w: sessionId", ErrMissingField)
	}
	if !c.Configured() {
		return Verification{Reason: "Invalid session"}, fmt.Errorf("verify session: %w", ErrNotConfigured)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err = c.observe(ctx, "verify_session", start, err); err != nil {
		return Verification{Reason: "Invalid session"}, fmt.Errorf("verify session: %w", err)
	}

	v := Verification{Metadata: s.Metadata}
	if s.Customer != nil {
		v.CustomerID = s.Customer.ID
	}
	if s.CustomerDetails != nil {
		v.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		v.Paid = true
	} else {
		v.Reason = "Payment status: " + string(s.PaymentStatus)
	}
	return v, nil
}

// CreatePortalSession returns a customer self-service URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: customerId", ErrMissingField)
	}
	if !c.Configured() {
		return "", fmt.Errorf("create portal session: %w", ErrNotConfigured)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.BillingPortalSessions.New(params)
	if err = c.observe(ctx, "portal_session", start, err); err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return s.URL, nil
}

func (c *Client) newCheckout(ctx context.Context, op string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.CheckoutSessions.New(params)
	if err = c.observe(ctx, op, start, err); err != nil {
		return nil, err
	}
	return s, nil
}

// observe records the call latency and turns provider errors into APIError.
func (c *Client) observe(ctx context.Context, op string, start time.Time, err error) error {
	if err == nil {
		metrics.UpstreamDuration.WithLabelValues("stripe", op, "success").Observe(time.Since(start).Seconds())
		return nil
	}
	metrics.UpstreamDuration.WithLabelValues("stripe", op, "error").Observe(time.Since(start).Seconds())

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.HTTPStatusCode == 0 {
		return fmt.Errorf("payment request failed: %w", err)
	}
	logging.From(ctx).Warnw("payment api error", "op", op, "status", stripeErr.HTTPStatusCode, "message", stripeErr.Msg)
	return &APIError{Status: stripeErr.HTTPStatusCode, Type: string(stripeErr.Type), Message: stripeErr.Msg}
}
