package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/billing"
	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/detached"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/publish"
	"github.com/primebarber/site-backend/internal/render"
	"github.com/primebarber/site-backend/internal/secrets"
	"github.com/primebarber/site-backend/internal/sites/domain"
	"github.com/primebarber/site-backend/internal/sites/drafts"
	"github.com/primebarber/site-backend/internal/sites/records"
	"github.com/primebarber/site-backend/internal/sites/service"
	"github.com/primebarber/site-backend/internal/storage/postgres"
)

type Sites interface {
	LoadAll(ctx context.Context, sess auth.Session) []domain.SiteInstance
	Get(ctx context.Context, sess auth.Session, id string) (domain.SiteInstance, error)
}

type Publisher interface {
	Run(ctx context.Context, req publish.Request) publish.Result
}

// Env is what commands run against.
type Env struct {
	Sites     Sites
	Publisher Publisher
	// Records is nil when the database is unreachable.
	Records *sqlx.DB

	closers []func()
}

// Close waits for background mirrors and releases connections.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// OpenEnv loads configuration and opens the draft file, the record store
// when reachable, and the publish collaborators.
func OpenEnv(ctx context.Context, progress io.Writer) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	vault, err := secrets.NewVault()
	if err != nil {
		return nil, err
	}
	var kv secrets.KV
	if vault != nil {
		kv = vault
	}
	if err := secrets.Resolve(ctx, kv, cfg.Secrets()); err != nil {
		return nil, err
	}
	log := zap.S()

	env := &Env{}
	store, err := drafts.OpenSQLite(cfg.Drafts.SQLitePath)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = store.Close() })

	var remote service.RemoteStore
	if db, err := postgres.NewConnection(ctx, cfg.Database); err != nil {
		log.Warnw("site records unavailable; local drafts only", zap.Error(err))
	} else {
		env.Records = db
		env.closers = append(env.closers, func() { _ = db.Close() })
		remote = records.NewRepository(db)
	}

	tasks := detached.NewRunner(cfg.Publish.TaskTimeout)
	// mirrors must land before the process exits
	env.closers = append(env.closers, tasks.Wait)

	sites := service.NewSites(drafts.Single{Store: store}, remote, tasks)
	env.Sites = sites

	objects, err := media.NewObjectStore(ctx, cfg.Storage)
	if err != nil && !errors.Is(err, media.ErrNotConfigured) {
		env.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	renderer, err := render.NewStatic()
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Publisher = publish.NewSequencer(publish.Config{
		ClaimTicks:     cfg.Publish.ClaimTicks,
		RepublishTicks: cfg.Publish.RepublishTicks,
		TickInterval:   cfg.Publish.TickInterval,
	}, publish.Deps{
		Sites:    sites,
		Uploader: media.NewPipeline(media.NewStoreUploader(objects)),
		Renderer: renderer,
		Deployer: deploy.NewClient(cfg.Vercel),
		Verifier: billing.NewClient(cfg.Stripe),
		Attempts: newProgressPrinter(progress),
		Tasks:    tasks,
	})
	return env, nil
}

// progressPrinter is an attempt store that narrates the attempt instead of
// storing it.
type progressPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	phase     publish.Phase
	remaining int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, remaining: -1}
}

func (p *progressPrinter) Save(_ context.Context, a publish.Attempt) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a.Phase != p.phase {
		switch a.Phase {
		case publish.PhasePublishing:
			fmt.Fprintf(p.w, "Publishing %s\n", a.SiteID)
		case publish.PhaseSuccess:
			fmt.Fprintf(p.w, "Live at %s\n", a.URL)
		case publish.PhaseError:
			fmt.Fprintf(p.w, "Publish failed: %s\n", a.Error)
		}
		p.phase = a.Phase
	}
	if !a.Phase.Terminal() && a.Remaining != p.remaining {
		if a.Remaining > 0 {
			fmt.Fprintf(p.w, "  %d\n", a.Remaining)
		}
		p.remaining = a.Remaining
	}
	return nil
}

func (p *progressPrinter) Get(context.Context, string) (publish.Attempt, error) {
	return publish.Attempt{}, publish.ErrAttemptNotFound
}

func (p *progressPrinter) Watch(context.Context, string) (<-chan publish.Attempt, func(), error) {
	return nil, nil, errors.New("progress printer cannot be watched")
}
