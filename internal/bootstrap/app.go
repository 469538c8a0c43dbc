package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/config"
	"github.com/primebarber/site-backend/internal/analytics"
	httpapi "github.com/primebarber/site-backend/internal/api/http"
	"github.com/primebarber/site-backend/internal/auth"
	authmw "github.com/primebarber/site-backend/internal/auth/middleware"
	"github.com/primebarber/site-backend/internal/billing"
	billinghttp "github.com/primebarber/site-backend/internal/billing/http"
	"github.com/primebarber/site-backend/internal/contentgen"
	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/detached"
	"github.com/primebarber/site-backend/internal/domains"
	domainshttp "github.com/primebarber/site-backend/internal/domains/http"
	"github.com/primebarber/site-backend/internal/media"
	"github.com/primebarber/site-backend/internal/publish"
	publishhttp "github.com/primebarber/site-backend/internal/publish/http"
	"github.com/primebarber/site-backend/internal/render"
	"github.com/primebarber/site-backend/internal/sites/drafts"
	siteshttp "github.com/primebarber/site-backend/internal/sites/http"
	"github.com/primebarber/site-backend/internal/sites/records"
	"github.com/primebarber/site-backend/internal/sites/service"
	"github.com/primebarber/site-backend/internal/storage/postgres"
	"github.com/primebarber/site-backend/internal/users"
)

// App is the assembled API process.
type App struct {
	Router *gin.Engine
	Tasks  *detached.Runner

	closers []func()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewApp connects every backing service and builds the router. Redis is
// required. Postgres, Firebase and object storage are optional: without them
// the service keeps serving drafts and reports the gap on /health.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	app := &App{Tasks: detached.NewRunner(cfg.Publish.TaskTimeout)}
	checks := map[string]httpapi.Check{}

	rdb, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = rdb.Close() })
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	var (
		remote    service.RemoteStore
		userRepo  *users.Repo
		recordsDB *sqlx.DB
		usersPool *pgxpool.Pool
	)
	if recordsDB, err = postgres.NewConnection(ctx, cfg.Database); err != nil {
		log.Warnw("site records database unavailable; drafts only", zap.Error(err))
	} else if err := postgres.Migrate(ctx, recordsDB); err != nil {
		app.Close()
		_ = recordsDB.Close()
		return nil, err
	} else {
		app.closers = append(app.closers, func() { _ = recordsDB.Close() })
		remote = records.NewRepository(recordsDB)
	}
	checks["records"] = sqlxCheck(recordsDB)

	if usersPool, err = OpenDB(ctx, DBOptions{DSN: cfg.Database.PostgresDSN()}); err != nil {
		log.Warnw("users database unavailable", zap.Error(err))
	} else {
		app.closers = append(app.closers, usersPool.Close)
		userRepo = users.NewRepo(usersPool)
	}
	checks["users"] = poolCheck(usersPool)

	authOpts := authmw.Options{TrustUserHeader: cfg.App.Environment == "development"}
	if verifier, err := auth.InitializeFirebase(ctx, cfg.Firebase); err != nil {
		log.Warnw("firebase auth disabled", zap.Error(err))
	} else {
		authOpts.Verifier = verifier
	}
	if userRepo != nil {
		authOpts.Users = userRepo
	}

	store, err := media.NewObjectStore(ctx, cfg.Storage)
	switch {
	case errors.Is(err, media.ErrNotConfigured):
		log.Warnw("object storage disabled; image uploads will fail")
	case err != nil:
		app.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		app.closers = append(app.closers, func() { _ = closer.Close() })
	}
	uploader := media.NewStoreUploader(store)

	renderer, err := render.NewStatic()
	if err != nil {
		app.Close()
		return nil, err
	}

	sites := service.NewSites(drafts.NewRedisStore(rdb), remote, app.Tasks)
	vercel := deploy.NewClient(cfg.Vercel)
	stripe := billing.NewClient(cfg.Stripe)
	attempts := publish.NewRedisAttempts(rdb)

	deps := publish.Deps{
		Sites:    sites,
		Uploader: media.NewPipeline(uploader),
		Renderer: renderer,
		Deployer: vercel,
		Verifier: stripe,
		Tracker:  analytics.NewMeta(cfg.Analytics),
		Attempts: attempts,
		Tasks:    app.Tasks,
	}
	var profiles billinghttp.Profiles
	if userRepo != nil {
		deps.Customers = userRepo
		profiles = userRepo
	}
	sequencer := publish.NewSequencer(publish.Config{
		ClaimTicks:     cfg.Publish.ClaimTicks,
		RepublishTicks: cfg.Publish.RepublishTicks,
		TickInterval:   cfg.Publish.TickInterval,
	}, deps)

	app.Router = BuildRouter(RouterDeps{
		ServiceName:    cfg.App.ServiceName,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
		Checks:         checks,
		Auth:           authOpts,
		Routes: []Routes{
			siteshttp.New(sites, contentgen.NewClient(cfg.Content.BaseURL), uploader),
			billinghttp.New(stripe, profiles),
			domainshttp.New(domains.NewService(vercel, stripe, sites)),
			publishhttp.New(sequencer, attempts),
		},
	})
	return app, nil
}

// sqlxCheck and poolCheck return nil for a missing connection so health
// lists it as disabled.
func sqlxCheck(db *sqlx.DB) httpapi.Check {
	if db == nil {
		return nil
	}
	return db.PingContext
}

func poolCheck(pool *pgxpool.Pool) httpapi.Check {
	if pool == nil {
		return nil
	}
	return pool.Ping
}
