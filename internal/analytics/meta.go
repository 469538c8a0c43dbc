// Package analytics reports conversion events to the ad platform.
package analytics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second

	DefaultValue    = 10.0
	DefaultCurrency = "USD"
)

// Purchase describes one completed checkout.
type Purchase struct {
	EventID       string
	Value         float64
	Currency      string
	CustomerEmail string
	SourceURL     string
	UserAgent     string
	ClientIP      string
}

// Tracker is implemented by Meta and by any no-op stand-in.
type Tracker interface {
	TrackPurchase(ctx context.Context, p Purchase) error
}

type Meta struct {
	baseURL   string
	pixelID   string
	token     string
	sourceURL string
	http      *http.Client
	now       func() time.Time
}

func NewMeta(cfg config.AnalyticsConfig) *Meta {
	return &Meta{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pixelID:   cfg.PixelID,
		token:     cfg.AccessToken,
		sourceURL: cfg.SourceURL,
		http:      &http.Client{Timeout: DefaultTimeout},
		now:       time.Now,
	}
}

func (m *Meta) Configured() bool { return m.pixelID != "" && m.token != "" }

type userData struct {
	Email     []string `json:"em,omitempty"`
	ClientIP  string   `json:"client_ip_address,omitempty"`
	UserAgent string   `json:"client_user_agent,omitempty"`
}

type customData struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

type event struct {
	Name         string     `json:"event_name"`
	Time         int64      `json:"event_time"`
	ID           string     `json:"event_id"`
	ActionSource string     `json:"action_source"`
	SourceURL    string     `json:"event_source_url"`
	UserData     userData   `json:"user_data"`
	CustomData   customData `json:"custom_data"`
}

type eventBatch struct {
	Data        []event `json:"data"`
	AccessToken string  `json:"access_token"`
}

// HashEmail normalises and hashes an address the way the platform matches it.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// TrackPurchase sends a Purchase event. An unconfigured tracker does nothing.
func (m *Meta) TrackPurchase(ctx context.Context, p Purchase) error {
	log := logging.From(ctx)
	if !m.Configured() {
		log.Debugw("purchase tracking disabled", "event_id", p.EventID)
		return nil
	}

	now := m.now()
	ev := event{
		Name:         "Purchase",
		Time:         now.Unix(),
		ID:           p.EventID,
		ActionSource: "website",
		SourceURL:    p.SourceURL,
		UserData:     userData{ClientIP: firstIP(p.ClientIP), UserAgent: p.UserAgent},
		CustomData:   customData{Currency: p.Currency, Value: p.Value},
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("purchase_%d", now.UnixMilli())
	}
	if ev.SourceURL == "" {
		ev.SourceURL = m.sourceURL
	}
	if ev.CustomData.Currency == "" {
		ev.CustomData.Currency = DefaultCurrency
	}
	if ev.CustomData.Value == 0 {
		ev.CustomData.Value = DefaultValue
	}
	if p.CustomerEmail != "" {
		ev.UserData.Email = []string{HashEmail(p.CustomerEmail)}
	}

	b, err := json.Marshal(eventBatch{Data: []event{ev}, AccessToken: m.token})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/"+m.pixelID+"/events", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.http.Do(req)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues("meta", "purchase", "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		metrics.UpstreamDuration.WithLabelValues("meta", "purchase", "error").Observe(time.Since(start).Seconds())
		var env struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		return fmt.Errorf("analytics status %d: %s", resp.StatusCode, env.Error.Message)
	}
	metrics.UpstreamDuration.WithLabelValues("meta", "purchase", "success").Observe(time.Since(start).Seconds())
	log.Infow("purchase event sent", "event_id", ev.ID)
	return nil
}

// firstIP takes the client entry of an X-Forwarded-For chain.
func firstIP(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
