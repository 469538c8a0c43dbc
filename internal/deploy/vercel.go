// Package deploy talks to the hosting provider: static deployments, project
// settings, and domain registration.
package deploy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
)

const (
	DefaultTimeout = 120 * time.Second
	// PayloadWarnBytes is the provider's recommended request ceiling.
	PayloadWarnBytes = 4.5 * 1024 * 1024

	defaultCSS = "/* No custom styles */"
)

var ErrNotConfigured = errors.New("hosting token is not configured")

// inlineImage matches base64 image payloads long enough to matter.
var inlineImage = regexp.MustCompile(`data:image/[^;]+;base64,[A-Za-z0-9+/=]{100,}`)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hosting api status %d", e.Status)
	}
	return fmt.Sprintf("hosting api status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	teamID  string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func NewClient(cfg config.VercelConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		teamID:  cfg.TeamID,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Configured() bool { return c.token != "" }

// Files is the complete static site. Images are never shipped; they are
// referenced by URL.
type Files struct {
	HTML string
	CSS  string
}

type Deployment struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	InspectorURL string `json:"inspectorUrl,omitempty"`
	Project      string `json:"project"`
}

type vercelFile struct {
	File     string `json:"file"`
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

type deployRequest struct {
	Name            string         `json:"name"`
	Files           []vercelFile   `json:"files"`
	Target          string         `json:"target"`
	ProjectSettings map[string]any `json:"projectSettings"`
}

type deployResponse struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Alias        []string `json:"alias"`
	InspectorURL string   `json:"inspectorUrl"`
}

// Deploy publishes index.html and styles.css to production under the project
// derived from seed, then clears access protection on the project.
func (c *Client) Deploy(ctx context.Context, seed string, files Files) (Deployment, error) {
	if !c.Configured() {
		return Deployment{}, ErrNotConfigured
	}
	log := logging.From(ctx)
	project := ProjectName(seed)

	html := files.HTML
	if n := len(inlineImage.FindAllStringIndex(html, -1)); n > 0 {
		log.Warnw("stripping inline images from html", "project", project, "count", n)
		html = inlineImage.ReplaceAllString(html, "")
	}
	css := files.CSS
	if css == "" {
		css = defaultCSS
	}

	total := len(html) + len(css)
	log.Infow("deploying", "project", project, "html_bytes", len(html), "css_bytes", len(css))
	if total > PayloadWarnBytes {
		log.Warnw("deployment payload exceeds recommended limit",
			"project", project, "bytes", total, "limit_bytes", int(PayloadWarnBytes))
	}

	req := deployRequest{
		Name: project,
		Files: []vercelFile{
			{File: "index.html", Data: base64.StdEncoding.EncodeToString([]byte(html)), Encoding: "base64"},
			{File: "styles.css", Data: base64.StdEncoding.EncodeToString([]byte(css)), Encoding: "base64"},
		},
		Target:          "production",
		ProjectSettings: map[string]any{"framework": nil},
	}

	var resp deployResponse
	err := c.do(ctx, "deploy", http.MethodPost, "/v13/deployments", req, &resp)
	metrics.Deployments.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return Deployment{}, fmt.Errorf("deploy %s: %w", project, err)
	}

	d := Deployment{
		ID:           resp.ID,
		URL:          preferredURL(resp),
		InspectorURL: resp.InspectorURL,
		Project:      project,
	}
	log.Infow("deployed", "project", project, "url", d.URL, "deployment_id", d.ID)

	if err := c.DisableProtection(ctx, project); err != nil {
		log.Warnw("could not disable deployment protection", "project", project, zap.Error(err))
	}
	return d, nil
}

// preferredURL picks the stable production alias over the per-deployment host.
func preferredURL(r deployResponse) string {
	switch {
	case len(r.Alias) > 0 && r.Alias[0] != "":
		return "https://" + r.Alias[0]
	case r.URL != "":
		return "https://" + r.URL
	default:
		return r.InspectorURL
	}
}

// DisableProtection makes the project publicly reachable.
func (c *Client) DisableProtection(ctx context.Context, project string) error {
	body := map[string]any{
		"passwordProtection":   nil,
		"vercelAuthentication": nil,
	}
	return c.do(ctx, "disable_protection", http.MethodPatch, "/v9/projects/"+url.PathEscape(project), body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if c.teamID != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "teamId=" + url.QueryEscape(c.teamID)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues("vercel", op, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("hosting request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		metrics.UpstreamDuration.WithLabelValues("vercel", op, "error").Observe(time.Since(start).Seconds())
		return decodeAPIError(resp.StatusCode, raw)
	}
	metrics.UpstreamDuration.WithLabelValues("vercel", op, "success").Observe(time.Since(start).Seconds())

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &env)
	return &APIError{Status: status, Code: env.Error.Code, Message: env.Error.Message}
}
