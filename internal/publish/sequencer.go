// Package publish runs the publish flow for a site: payment gate, image upload,
// render, deploy, and persistence, paced by a cosmetic countdown.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/primebarber/site-backend/internal/analytics"
	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/detached"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/metrics"
	"github.com/primebarber/site-backend/internal/render"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

const (
	taskPurchaseTracking = "purchase-tracking"
	taskLinkCustomer     = "link-customer"

	subscriptionActive = "active"
)

var (
	ErrPaymentNotVerified = errors.New("payment not verified")
	ErrMissingSession     = errors.New("payment session id is required")
	// ErrSiteMismatch is returned when a claim names a site other than the
	// one the checkout was paid for.
	ErrSiteMismatch = errors.New("checkout session was paid for a different site")
)

// Flow selects the publish variant.
type Flow string

const (
	// FlowClaim is the first publish after checkout. It is payment-gated and
	// works for anonymous sessions.
	FlowClaim Flow = "claim"
	// FlowRepublish redeploys a site the signed-in user already owns.
	FlowRepublish Flow = "republish"
)

type Request struct {
	Flow      Flow
	SessionID string
	SiteID    string
	// AttemptID lets a caller watch the attempt before Run returns. A new id
	// is generated when empty.
	AttemptID string
	Session   auth.Session
	UserAgent string
	ClientIP  string
}

func (r Request) validate() error {
	switch r.Flow {
	case FlowClaim:
		if r.SessionID == "" {
			return ErrMissingSession
		}
	case FlowRepublish:
		if !r.Session.Authenticated() {
			return domain.ErrUserRequired
		}
		if r.SiteID == "" {
			return domain.ErrInvalidSiteID
		}
	default:
		return fmt.Errorf("unknown publish flow %q", r.Flow)
	}
	return nil
}

// flightKey groups duplicate requests: one execution per checkout session,
// one per owned site for republish.
func (r Request) flightKey() string {
	if r.Flow == FlowClaim {
		return string(FlowClaim) + ":" + r.SessionID
	}
	return string(FlowRepublish) + ":" + r.Session.UserID + ":" + r.SiteID
}

type Result struct {
	AttemptID string               `json:"attemptId"`
	URL       string               `json:"url,omitempty"`
	ImageURLs map[string]string    `json:"imageUrls,omitempty"`
	Site      *domain.SiteInstance `json:"site,omitempty"`
	Ticks     int                  `json:"ticks"`
	Err       error                `json:"-"`
}

// Sites is the dual-write coordinator as seen by the publish flow.
type Sites interface {
	Get(ctx context.Context, sess auth.Session, id string) (domain.SiteInstance, error)
	Save(ctx context.Context, site domain.SiteInstance, sess auth.Session) (domain.SiteInstance, error)
}

type Uploader interface {
	UploadPending(ctx context.Context, siteID string, data domain.WebsiteData, mode media.Mode) (map[string]string, error)
}

type Deployer interface {
	Deploy(ctx context.Context, seed string, files deploy.Files) (deploy.Deployment, error)
}

// CustomerLinker records the payment customer against the signed-in user.
type CustomerLinker interface {
	SetStripeCustomer(ctx context.Context, firebaseUID, customerID, status string) error
}

type Config struct {
	ClaimTicks     int
	RepublishTicks int
	TickInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{ClaimTicks: 15, RepublishTicks: 3, TickInterval: time.Second}
}

// Deps are the collaborators. Attempts, Tracker and Customers are optional.
type Deps struct {
	Sites     Sites
	Uploader  Uploader
	Renderer  render.Renderer
	Deployer  Deployer
	Verifier  billing.Verifier
	Tracker   analytics.Tracker
	Customers CustomerLinker
	Attempts  AttemptStore
	Tasks     detached.Spawner
}

type Sequencer struct {
	cfg    Config
	deps   Deps
	flight singleflight.Group
	now    func() time.Time
}

func NewSequencer(cfg Config, deps Deps) *Sequencer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Sequencer{cfg: cfg, deps: deps, now: time.Now}
}

func (s *Sequencer) ticks(f Flow) int {
	if f == FlowClaim {
		return s.cfg.ClaimTicks
	}
	return s.cfg.RepublishTicks
}

// Run executes one publish attempt and returns once both the countdown and
// the work have finished. Concurrent requests with the same flight key share
// a single execution and its result.
//
// ctx should not be tied to a client connection; an abandoned request must
// not stop a deploy that is already under way.
func (s *Sequencer) Run(ctx context.Context, req Request) Result {
	if err := req.validate(); err != nil {
		return Result{Err: err}
	}
	v, _, shared := s.flight.Do(req.flightKey(), func() (any, error) {
		return s.run(ctx, req), nil
	})
	res := v.(Result)
	if shared {
		logging.From(ctx).Infow("joined in-flight publish", "attempt_id", res.AttemptID, "flow", req.Flow)
	}
	return res
}

func (s *Sequencer) run(ctx context.Context, req Request) Result {
	id := req.AttemptID
	if id == "" {
		id = uuid.NewString()
	}
	log := logging.From(ctx).With("attempt_id", id, "flow", string(req.Flow), "site_id", req.SiteID)
	ctx = logging.WithLogger(ctx, log)

	ticks := s.ticks(req.Flow)
	now := s.now()
	tr := &tracker{
		store: s.deps.Attempts,
		attempt: Attempt{
			ID:        id,
			Flow:      req.Flow,
			SiteID:    req.SiteID,
			UserID:    req.Session.UserID,
			Phase:     PhasePublishing,
			Remaining: ticks,
			CreatedAt: now,
			UpdatedAt: now,
		},
		now: s.now,
	}
	tr.save(ctx)
	log.Infow("publish started", "ticks", ticks)

	ticked := make(chan int, 1)
	worked := make(chan Result, 1)
	go func() {
		ticked <- Countdown(ctx, ticks, s.cfg.TickInterval, func(remaining int) {
			tr.update(ctx, func(a *Attempt) { a.Remaining = remaining })
		})
	}()
	go func() {
		worked <- s.guardedWork(ctx, req, tr)
	}()
	elapsed := <-ticked
	res := <-worked

	res.AttemptID = id
	res.Ticks = elapsed
	metrics.PublishAttempts.WithLabelValues(string(req.Flow), metrics.Outcome(res.Err)).Inc()

	tr.update(ctx, func(a *Attempt) {
		a.Remaining = 0
		a.URL = res.URL
		a.ImageURLs = res.ImageURLs
		if res.Err != nil {
			a.Phase = PhaseError
			a.Error = res.Err.Error()
		} else {
			a.Phase = PhaseSuccess
		}
	})
	if res.Err != nil {
		log.Warnw("publish failed", zap.Error(res.Err))
	} else {
		log.Infow("publish succeeded", "url", res.URL)
	}
	return res
}

func (s *Sequencer) guardedWork(ctx context.Context, req Request, tr *tracker) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("publish panicked: %v", p)}
		}
	}()
	return s.work(ctx, req, tr)
}

func (s *Sequencer) work(ctx context.Context, req Request, tr *tracker) Result {
	log := logging.From(ctx)
	sess := req.Session
	siteID := req.SiteID

	var paid billing.Verification
	if req.Flow == FlowClaim {
		v, err := s.deps.Verifier.VerifySession(ctx, req.SessionID)
		if err != nil {
			return Result{Err: fmt.Errorf("verify payment: %w", err)}
		}
		if !v.Paid {
			return Result{Err: fmt.Errorf("%w: %s", ErrPaymentNotVerified, v.Reason)}
		}
		paid = v
		switch paidFor := v.Metadata[billing.MetadataSiteID]; {
		case siteID == "":
			siteID = paidFor
		case paidFor != "" && paidFor != siteID:
			return Result{Err: fmt.Errorf("%w: requested %s", ErrSiteMismatch, siteID)}
		}
		if siteID == "" {
			return Result{Err: domain.ErrInvalidSiteID}
		}
	}
	tr.update(ctx, func(a *Attempt) {
		a.Phase = PhaseCountdown
		a.SiteID = siteID
	})

	site, err := s.deps.Sites.Get(ctx, sess, siteID)
	if err != nil {
		return Result{Err: fmt.Errorf("load site %s: %w", siteID, err)}
	}

	site.DeploymentStatus = domain.StatusDeploying
	site, err = s.deps.Sites.Save(ctx, site, sess)
	if err != nil {
		return Result{Err: fmt.Errorf("mark deploying: %w", err)}
	}

	fail := func(err error) Result {
		s.markFailed(ctx, site, sess)
		return Result{Err: err}
	}

	mode := media.Sequential
	if req.Flow == FlowClaim {
		mode = media.Parallel
	}
	urls, err := s.deps.Uploader.UploadPending(ctx, site.ID, site.Data, mode)
	if err != nil {
		return fail(err)
	}

	withURLs := site.Data.WithImageURLs(urls)
	page, err := s.deps.Renderer.Render(withURLs.WithSlotMarkers())
	if err != nil {
		return fail(err)
	}
	html := Substitute(ctx, page.HTML, urls)

	dep, err := s.deps.Deployer.Deploy(ctx, site.ProjectSeed(), deploy.Files{HTML: html, CSS: page.CSS})
	if err != nil {
		return fail(err)
	}

	site.Data = withURLs
	site.DeployedURL = domain.StringPtr(dep.URL)
	site.DeploymentStatus = domain.StatusDeployed
	saved, err := s.deps.Sites.Save(ctx, site, sess)
	if err != nil {
		log.Errorw("deployed but could not persist site", "url", dep.URL, zap.Error(err))
		return Result{URL: dep.URL, ImageURLs: urls, Err: fmt.Errorf("persist deployed site: %w", err)}
	}

	if req.Flow == FlowClaim {
		s.afterClaim(ctx, req, paid)
	}
	return Result{URL: dep.URL, ImageURLs: urls, Site: &saved}
}

// markFailed records the failure on the site. Its own error is only logged.
func (s *Sequencer) markFailed(ctx context.Context, site domain.SiteInstance, sess auth.Session) {
	site.DeploymentStatus = domain.StatusFailed
	if _, err := s.deps.Sites.Save(ctx, site, sess); err != nil {
		logging.From(ctx).Warnw("could not record failed status", "site_id", site.ID, zap.Error(err))
	}
}

func (s *Sequencer) afterClaim(ctx context.Context, req Request, paid billing.Verification) {
	if s.deps.Tracker != nil {
		purchase := analytics.Purchase{
			EventID:       "purchase_" + req.SessionID,
			Value:         float64(billing.HostingCents) / 100,
			Currency:      analytics.DefaultCurrency,
			CustomerEmail: paid.CustomerEmail,
			UserAgent:     req.UserAgent,
			ClientIP:      req.ClientIP,
		}
		s.deps.Tasks.Go(ctx, taskPurchaseTracking, func(tctx context.Context) error {
			return s.deps.Tracker.TrackPurchase(tctx, purchase)
		})
	}

	if s.deps.Customers != nil && req.Session.Authenticated() && paid.CustomerID != "" {
		uid, customer := req.Session.UserID, paid.CustomerID
		s.deps.Tasks.Go(ctx, taskLinkCustomer, func(tctx context.Context) error {
			return s.deps.Customers.SetStripeCustomer(tctx, uid, customer, subscriptionActive)
		})
	}
}

// tracker serialises attempt updates from the two branches.
type tracker struct {
	mu      sync.Mutex
	store   AttemptStore
	attempt Attempt
	now     func() time.Time
}

func (t *tracker) update(ctx context.Context, fn func(*Attempt)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.attempt)
	t.attempt.UpdatedAt = t.now()
	t.persist(ctx)
}

func (t *tracker) save(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persist(ctx)
}

func (t *tracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(ctx, t.attempt); err != nil {
		logging.From(ctx).Warnw("could not persist publish attempt", "attempt_id", t.attempt.ID, zap.Error(err))
	}
}
