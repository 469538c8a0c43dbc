// Package contentgen calls the upstream content generation service and
// assembles its output into WebsiteData.
package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

// Generation runs text and several image models; it is slow.
const DefaultTimeout = 3 * time.Minute

var (
	ErrNotConfigured = errors.New("content service is not configured")
	ErrFailed        = errors.New("generation failed")
)

var serviceIcons = []string{"scissors", "razor", "mustache", "face"}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// generated is the upstream response. Images are positional: hero, about,
// then gallery candidates; blank entries are failed generations.
type generated struct {
	Hero struct {
		Heading string `json:"heading"`
		Tagline string `json:"tagline"`
	} `json:"hero"`
	About struct {
		Heading    string   `json:"heading"`
		Paragraphs []string `json:"paragraphs"`
	} `json:"about"`
	Services []struct {
		Title       string `json:"title"`
		Subtitle    string `json:"subtitle"`
		Description string `json:"description"`
	} `json:"services"`
	Contact *domain.Contact `json:"contact"`
	Images  []string        `json:"images"`
}

// Generate asks the upstream for content for one shop. Any upstream failure
// is reported as ErrFailed with the cause wrapped.
func (c *Client) Generate(ctx context.Context, in domain.ShopInputs) (domain.WebsiteData, error) {
	if c.baseURL == "" {
		return domain.WebsiteData{}, ErrNotConfigured
	}
	log := logging.From(ctx)

	body, err := json.Marshal(in)
	if err != nil {
		return domain.WebsiteData{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return domain.WebsiteData{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues("contentgen", "generate", "error").Observe(time.Since(start).Seconds())
		log.Errorw("content service request failed", zap.Error(err))
		return domain.WebsiteData{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.UpstreamDuration.WithLabelValues("contentgen", "generate", "error").Observe(time.Since(start).Seconds())
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Warnw("content service returned error", "status", resp.StatusCode, "body", string(msg))
		return domain.WebsiteData{}, fmt.Errorf("%w: upstream status %d", ErrFailed, resp.StatusCode)
	}

	var g generated
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		metrics.UpstreamDuration.WithLabelValues("contentgen", "generate", "error").Observe(time.Since(start).Seconds())
		return domain.WebsiteData{}, fmt.Errorf("%w: decode: %v", ErrFailed, err)
	}
	metrics.UpstreamDuration.WithLabelValues("contentgen", "generate", "success").Observe(time.Since(start).Seconds())

	return assemble(in, g), nil
}

func assemble(in domain.ShopInputs, g generated) domain.WebsiteData {
	image := func(i int) string {
		if i < len(g.Images) {
			return g.Images[i]
		}
		return ""
	}

	d := domain.WebsiteData{
		ShopName: in.ShopName,
		Area:     in.Area,
		Phone:    in.Phone,
		Hero: domain.Hero{
			Heading:  orDefault(g.Hero.Heading, in.ShopName+" in "+in.Area),
			Tagline:  orDefault(g.Hero.Tagline, "Elite Grooming Standards"),
			ImageURL: image(0),
		},
		About: domain.About{
			Heading:     orDefault(g.About.Heading, "The Artisan Standard"),
			Description: g.About.Paragraphs,
			ImageURL:    image(1),
		},
		Gallery: []string{},
	}
	if len(d.About.Description) == 0 {
		d.About.Description = []string{"Dedicated to traditional craft and modern style."}
	}

	for i, s := range g.Services {
		img := image(i + 2)
		if img == "" {
			img = image(2)
		}
		d.Services = append(d.Services, domain.ServiceItem{
			Title:       s.Title,
			Subtitle:    s.Subtitle,
			Description: s.Description,
			Icon:        serviceIcons[i%len(serviceIcons)],
			ImageURL:    img,
		})
	}

	for _, img := range g.Images {
		if img != "" {
			d.Gallery = append(d.Gallery, img)
		}
	}

	if g.Contact != nil {
		d.Contact = *g.Contact
	} else {
		d.Contact = domain.Contact{
			Address: in.Area,
			Email:   "contact@" + strings.Join(strings.Fields(strings.ToLower(in.ShopName)), "") + ".com",
		}
	}
	return d
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
