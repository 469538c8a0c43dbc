// Package domains sells custom domains: availability and price lookup, a paid
// checkout, and registration once the checkout completes.
package domains

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

var (
	ErrInvalidDomain   = errors.New("invalid domain name")
	ErrNotPaid         = errors.New("payment not completed")
	ErrMissingMetadata = errors.New("missing domain or projectName in session metadata")
)

var domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// Registrar is the hosting provider's domain API.
type Registrar interface {
	CheckDomain(ctx context.Context, domain string) (bool, error)
	DomainPrice(ctx context.Context, domain string) (float64, float64, error)
	BuyDomain(ctx context.Context, domain string) (string, error)
	AddProjectDomain(ctx context.Context, project, domain string) error
}

type Payments interface {
	billing.Verifier
	CreateDomainCheckout(ctx context.Context, req billing.DomainCheckout, origin string) (string, error)
	TestMode() bool
}

type Sites interface {
	Get(ctx context.Context, sess auth.Session, id string) (domain.SiteInstance, error)
	Save(ctx context.Context, site domain.SiteInstance, sess auth.Session) (domain.SiteInstance, error)
}

type Availability struct {
	Domain       string  `json:"domain"`
	Available    bool    `json:"available"`
	Price        float64 `json:"price,omitempty"`
	RenewalPrice float64 `json:"renewalPrice,omitempty"`
	// Total is what the customer is charged, markup included.
	Total float64 `json:"total,omitempty"`
}

type Order struct {
	Domain   string `json:"domain"`
	OrderID  string `json:"orderId"`
	SiteID   string `json:"siteId,omitempty"`
	TestMode bool   `json:"testMode,omitempty"`
}

type Service struct {
	registrar Registrar
	payments  Payments
	sites     Sites
	now       func() time.Time
}

func NewService(registrar Registrar, payments Payments, sites Sites) *Service {
	return &Service{registrar: registrar, payments: payments, sites: sites, now: time.Now}
}

// Normalize lowercases and validates a bare domain name.
func Normalize(d string) (string, error) {
	d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
	if !domainPattern.MatchString(d) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, d)
	}
	return d, nil
}

// Check reports availability and, for available names, the price. A failed
// price lookup leaves the price at zero.
func (s *Service) Check(ctx context.Context, name string) (Availability, error) {
	d, err := Normalize(name)
	if err != nil {
		return Availability{}, err
	}
	ok, err := s.registrar.CheckDomain(ctx, d)
	if err != nil {
		return Availability{}, err
	}
	out := Availability{Domain: d, Available: ok}
	if !ok {
		return out, nil
	}
	price, renewal, err := s.registrar.DomainPrice(ctx, d)
	if err != nil {
		logging.From(ctx).Warnw("domain price unavailable", "domain", d, zap.Error(err))
		return out, nil
	}
	out.Price = price
	out.RenewalPrice = renewal
	out.Total = float64(billing.DomainChargeCents(price)) / 100
	return out, nil
}

// Checkout opens a one-time payment for req.
func (s *Service) Checkout(ctx context.Context, req billing.DomainCheckout, origin string) (string, error) {
	d, err := Normalize(req.Domain)
	if err != nil {
		return "", err
	}
	req.Domain = d
	return s.payments.CreateDomainCheckout(ctx, req, origin)
}

// Complete registers the domain paid for in sessionID and points it at the
// site's project. Attaching the domain and recording it on the site are best
// effort; the registration itself is not.
func (s *Service) Complete(ctx context.Context, sessionID string, sess auth.Session) (Order, error) {
	log := logging.From(ctx)

	v, err := s.payments.VerifySession(ctx, sessionID)
	if err != nil {
		return Order{}, err
	}
	if !v.Paid {
		return Order{}, fmt.Errorf("%w: %s", ErrNotPaid, strings.TrimPrefix(v.Reason, "Payment status: "))
	}

	name := v.Metadata[billing.MetadataDomain]
	project := v.Metadata[billing.MetadataProjectName]
	if name == "" || project == "" {
		return Order{}, ErrMissingMetadata
	}
	order := Order{Domain: name, SiteID: v.Metadata[billing.MetadataSiteID]}

	if s.payments.TestMode() {
		log.Infow("test mode: skipping domain registration", "domain", name)
		order.OrderID = "test_order_" + strconv.FormatInt(s.now().UnixMilli(), 10)
		order.TestMode = true
	} else {
		id, err := s.registrar.BuyDomain(ctx, name)
		if err != nil {
			return Order{}, fmt.Errorf("domain purchase failed: %w", err)
		}
		if id == "" {
			id = "order_" + strconv.FormatInt(s.now().UnixMilli(), 10)
		}
		order.OrderID = id

		if err := s.registrar.AddProjectDomain(ctx, project, name); err != nil {
			log.Warnw("could not attach domain to project", "domain", name, "project", project, zap.Error(err))
		}
	}

	s.recordOnSite(ctx, order, sess)
	return order, nil
}

func (s *Service) recordOnSite(ctx context.Context, order Order, sess auth.Session) {
	if order.SiteID == "" || s.sites == nil {
		return
	}
	log := logging.From(ctx)
	site, err := s.sites.Get(ctx, sess, order.SiteID)
	if err != nil {
		log.Warnw("could not load site to record domain", "site_id", order.SiteID, zap.Error(err))
		return
	}
	site.CustomDomain = domain.StringPtr(order.Domain)
	site.DomainOrderID = domain.StringPtr(order.OrderID)
	if _, err := s.sites.Save(ctx, site, sess); err != nil {
		log.Warnw("could not record domain on site", "site_id", order.SiteID, zap.Error(err))
	}
}
