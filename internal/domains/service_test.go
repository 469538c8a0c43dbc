package domains

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

type fakeRegistrar struct {
	available bool
	price     float64
	bought    []string
	attached  [][2]string
	buyErr    error
	attachErr error
}

func (f *fakeRegistrar) CheckDomain(context.Context, string) (bool, error) { return f.available, nil }
func (f *fakeRegistrar) DomainPrice(context.Context, string) (float64, float64, error) {
	return f.price, f.price + 2, nil
}
func (f *fakeRegistrar) BuyDomain(_ context.Context, d string) (string, error) {
	f.bought = append(f.bought, d)
	return "ord_1", f.buyErr
}
func (f *fakeRegistrar) AddProjectDomain(_ context.Context, p, d string) error {
	f.attached = append(f.attached, [2]string{p, d})
	return f.attachErr
}

type fakePayments struct {
	v        billing.Verification
	test     bool
	checkout billing.DomainCheckout
}

func (f *fakePayments) VerifySession(context.Context, string) (billing.Verification, error) {
	return f.v, nil
}
func (f *fakePayments) CreateDomainCheckout(_ context.Context, req billing.DomainCheckout, origin string) (string, error) {
	f.checkout = req
	return "https://checkout/" + req.Domain, nil
}
func (f *fakePayments) TestMode() bool { return f.test }

type memSites struct {
	sites map[string]domain.SiteInstance
}

func (m *memSites) Get(_ context.Context, _ auth.Session, id string) (domain.SiteInstance, error) {
	s, ok := m.sites[id]
	if !ok {
		return domain.SiteInstance{}, domain.ErrSiteNotFound
	}
	return s, nil
}

func (m *memSites) Save(_ context.Context, s domain.SiteInstance, _ auth.Session) (domain.SiteInstance, error) {
	m.sites[s.ID] = s
	return s, nil
}

func paidSession() billing.Verification {
	return billing.Verification{Paid: true, Metadata: map[string]string{
		billing.MetadataDomain:      "joes.com",
		billing.MetadataProjectName: "joes",
		billing.MetadataSiteID:      "site-1",
	}}
}

func TestCheck(t *testing.T) {
	reg := &fakeRegistrar{available: true, price: 11.99}
	svc := NewService(reg, &fakePayments{}, nil)

	a, err := svc.Check(context.Background(), " Joes.COM ")
	require.NoError(t, err)
	assert.Equal(t, Availability{Domain: "joes.com", Available: true, Price: 11.99, RenewalPrice: 13.99, Total: 16.99}, a)

	reg.available = false
	a, err = svc.Check(context.Background(), "joes.com")
	require.NoError(t, err)
	assert.False(t, a.Available)
	assert.Zero(t, a.Price)

	_, err = svc.Check(context.Background(), "not a domain")
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestCheckout(t *testing.T) {
	pay := &fakePayments{}
	svc := NewService(&fakeRegistrar{}, pay, nil)

	u, err := svc.Checkout(context.Background(), billing.DomainCheckout{Domain: "Joes.com", PriceUSD: 10, SiteID: "s", ProjectName: "p"}, "o")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout/joes.com", u)
	assert.Equal(t, "joes.com", pay.checkout.Domain)
}

func TestComplete(t *testing.T) {
	reg := &fakeRegistrar{attachErr: errors.New("project missing")}
	sites := &memSites{sites: map[string]domain.SiteInstance{"site-1": {ID: "site-1"}}}
	svc := NewService(reg, &fakePayments{v: paidSession()}, sites)

	order, err := svc.Complete(context.Background(), "cs_1", auth.Session{UserID: "u1"})
	require.NoError(t, err, "attach failure is not fatal")
	assert.Equal(t, Order{Domain: "joes.com", OrderID: "ord_1", SiteID: "site-1"}, order)
	assert.Equal(t, []string{"joes.com"}, reg.bought)
	assert.Equal(t, [][2]string{{"joes", "joes.com"}}, reg.attached)

	site := sites.sites["site-1"]
	require.NotNil(t, site.CustomDomain)
	assert.Equal(t, "joes.com", *site.CustomDomain)
	assert.Equal(t, "ord_1", *site.DomainOrderID)
}

func TestComplete_TestMode(t *testing.T) {
	reg := &fakeRegistrar{}
	svc := NewService(reg, &fakePayments{v: paidSession(), test: true}, nil)
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	order, err := svc.Complete(context.Background(), "cs_1", auth.Session{})
	require.NoError(t, err)
	assert.Equal(t, "test_order_1700000000123", order.OrderID)
	assert.True(t, order.TestMode)
	assert.Empty(t, reg.bought)
}

func TestComplete_Rejections(t *testing.T) {
	svc := NewService(&fakeRegistrar{}, &fakePayments{v: billing.Verification{Reason: "Payment status: unpaid"}}, nil)
	_, err := svc.Complete(context.Background(), "cs_1", auth.Session{})
	assert.ErrorIs(t, err, ErrNotPaid)
	assert.Contains(t, err.Error(), "unpaid")

	svc = NewService(&fakeRegistrar{}, &fakePayments{v: billing.Verification{Paid: true}}, nil)
	_, err = svc.Complete(context.Background(), "cs_1", auth.Session{})
	assert.ErrorIs(t, err, ErrMissingMetadata)

	reg := &fakeRegistrar{buyErr: errors.New("registrar down")}
	svc = NewService(reg, &fakePayments{v: paidSession()}, nil)
	_, err = svc.Complete(context.Background(), "cs_1", auth.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain purchase failed")
	assert.Empty(t, reg.attached)
}
