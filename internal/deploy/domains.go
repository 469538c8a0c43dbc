package deploy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// CheckDomain reports whether domain can be registered.
func (c *Client) CheckDomain(ctx context.Context, domain string) (bool, error) {
	if !c.Configured() {
		return false, ErrNotConfigured
	}
	var resp struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, "domain_check", http.MethodGet, "/v5/domains/"+url.PathEscape(domain)+"/check", nil, &resp); err != nil {
		return false, fmt.Errorf("check %s: %w", domain, err)
	}
	return resp.Available, nil
}

// DomainPrice returns the registration and renewal price in USD. A missing
// renewal price falls back to the registration price.
func (c *Client) DomainPrice(ctx context.Context, domain string) (float64, float64, error) {
	if !c.Configured() {
		return 0, 0, ErrNotConfigured
	}
	var resp struct {
		Price        float64 `json:"price"`
		RenewalPrice float64 `json:"renewalPrice"`
	}
	if err := c.do(ctx, "domain_price", http.MethodGet, "/v1/registrar/domains/"+url.PathEscape(domain)+"/price", nil, &resp); err != nil {
		return 0, 0, fmt.Errorf("price %s: %w", domain, err)
	}
	renewal := resp.RenewalPrice
	if renewal == 0 {
		renewal = resp.Price
	}
	return resp.Price, renewal, nil
}

// BuyDomain registers domain for one year with auto-renew and returns the
// provider's order id.
func (c *Client) BuyDomain(ctx context.Context, domain string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	var resp struct {
		OrderID string `json:"orderId"`
		ID      string `json:"id"`
	}
	body := map[string]any{"autoRenew": true, "years": 1}
	if err := c.do(ctx, "domain_buy", http.MethodPost, "/v1/registrar/domains/"+url.PathEscape(domain)+"/buy", body, &resp); err != nil {
		return "", fmt.Errorf("buy %s: %w", domain, err)
	}
	if resp.OrderID != "" {
		return resp.OrderID, nil
	}
	return resp.ID, nil
}

// AddProjectDomain points domain at project.
func (c *Client) AddProjectDomain(ctx context.Context, project, domain string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	body := map[string]string{"name": domain}
	if err := c.do(ctx, "domain_attach", http.MethodPost, "/v10/projects/"+url.PathEscape(project)+"/domains", body, nil); err != nil {
		return fmt.Errorf("attach %s to %s: %w", domain, project, err)
	}
	return nil
}
