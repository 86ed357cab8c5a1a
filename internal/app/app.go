// Package app wires configuration into the stores, services and HTTP
// handlers shared by the server and the admin CLI.
package app

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"familygallery/internal/audit"
	"familygallery/internal/config"
	"familygallery/internal/database"
	"familygallery/internal/handlers"
	"familygallery/internal/observability"
	"familygallery/internal/repository"
	"familygallery/internal/security"
	"familygallery/internal/service"
	"familygallery/internal/storage"
	"familygallery/migrations"
)

// Repositories groups every store the services use
type Repositories struct {
	Users         *repository.UserRepository
	Families      *repository.FamilyRepository
	Children      *repository.ChildRepository
	Artworks      *repository.ArtworkRepository
	Invites       *repository.InviteRepository
	ShareLinks    *repository.ShareLinkRepository
	Subscriptions *repository.SubscriptionRepository
	Counts        *repository.CountRepository
	Purge         *repository.PurgeRepository
	Audit         *repository.AuditRepository
}

// App is a fully wired instance of the gallery backend
type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	DB       *database.DB
	Repos    Repositories
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Plans    *service.PlanResolver
	Quota    *service.QuotaService
	Gallery  *service.GalleryService
	Deletion *service.AccountDeletionService
	Email    *service.EmailService

	Tokens  *security.TokenManager
	Policy  *security.StaticAdminPolicy
	Limiter security.Limiter

	redis *redis.Client
}

// New opens the database, applies migrations and builds every service.
// Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	logger.WithField("type", cfg.DatabaseType).Info("database connection established")

	if err := db.RunMigrations(ctx, migrations.FS, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	a := &App{Config: cfg, Logger: logger, DB: db}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger, db := a.Config, a.Logger, a.DB

	a.Repos = Repositories{
		Users:         repository.NewUserRepository(db),
		Families:      repository.NewFamilyRepository(db),
		Children:      repository.NewChildRepository(db),
		Artworks:      repository.NewArtworkRepository(db),
		Invites:       repository.NewInviteRepository(db),
		ShareLinks:    repository.NewShareLinkRepository(db),
		Subscriptions: repository.NewSubscriptionRepository(db),
		Counts:        repository.NewCountRepository(db),
		Purge:         repository.NewPurgeRepository(db),
		Audit:         repository.NewAuditRepository(db),
	}

	if cfg.MetricsEnabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	catalog := service.DefaultPlanCatalog()
	if cfg.PlansFile != "" {
		loaded, err := service.LoadPlanCatalog(cfg.PlansFile)
		if err != nil {
			return errors.Wrap(err, "failed to load plan catalog")
		}
		catalog = loaded
		logger.WithField("path", cfg.PlansFile).Info("plan catalog loaded")
	}
	a.Plans = service.NewPlanResolver(a.Repos.Subscriptions, catalog, logger)
	a.Quota = service.NewQuotaService(a.Plans, a.Repos.Counts, a.Metrics, logger)

	email, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize email service")
	}
	a.Email = email

	a.Gallery = service.NewGalleryService(service.GalleryRepositories{
		Families:   a.Repos.Families,
		Children:   a.Repos.Children,
		Artworks:   a.Repos.Artworks,
		Invites:    a.Repos.Invites,
		ShareLinks: a.Repos.ShareLinks,
	}, a.Plans, email, a.Metrics, logger)

	var blobs storage.BlobStore = storage.NoopStore{}
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return errors.Wrap(err, "failed to initialize blob storage")
		}
		blobs = s3Store
		logger.WithField("bucket", cfg.S3Bucket).Info("artwork blobs stored in S3")
	}

	a.Policy = security.NewStaticAdminPolicy(cfg.AdminEmailList())
	a.Tokens = security.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	a.Deletion = service.NewAccountDeletionService(service.AccountDeletionDeps{
		Policy:   a.Policy,
		Accounts: a.Repos.Users,
		Families: a.Repos.Families,
		Artworks: a.Repos.Artworks,
		Counts:   a.Repos.Counts,
		Purger:   a.Repos.Purge,
		Blobs:    blobs,
		Audit:    audit.NewMultiLogger(audit.NewLogrusLogger(logger), audit.NewStoreLogger(a.Repos.Audit)),
		Notifier: email,
		Metrics:  a.Metrics,
		Logger:   logger,
		Timeout:  cfg.DeletionTimeout,
	})

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup, admin requests are rejected until it recovers")
		}
		limiter, err := security.NewRedisSlidingWindow(a.redis, "familygallery:ratelimit:", cfg.AdminRateLimit, cfg.AdminRateWindow)
		if err != nil {
			return errors.Wrap(err, "invalid admin rate limit")
		}
		a.Limiter = limiter
	} else {
		limiter, err := security.NewSlidingWindowLimiter(cfg.AdminRateLimit, cfg.AdminRateWindow)
		if err != nil {
			return errors.Wrap(err, "invalid admin rate limit")
		}
		a.Limiter = limiter
	}
	return nil
}

// Router builds the HTTP handler for the server
func (a *App) Router(startup *handlers.Startup) (http.Handler, error) {
	origins := a.Config.OriginList()
	if len(origins) == 0 {
		return nil, errors.New("ALLOWED_ORIGINS must name at least one origin")
	}
	csrf := security.NewCSRFGenerator(a.Config.CSRFSecret)

	mw := handlers.NewMiddleware(handlers.MiddlewareDeps{
		Tokens:  a.Tokens,
		Policy:  a.Policy,
		Origins: security.NewOriginVerifier(origins),
		CSRF:    csrf,
		Limiter: a.Limiter,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})

	return handlers.NewRouter(handlers.Routes{
		Middleware: mw,
		Startup:    startup,
		Quota:      handlers.NewQuotaHandler(a.Quota, a.Gallery, a.Config.QuotaTimeout, a.Logger),
		Gallery:    handlers.NewGalleryHandler(a.Gallery, a.Logger),
		Admin:      handlers.NewAdminHandler(a.Deletion, csrf, a.Logger),
		Registry:   a.Registry,
		Metrics:    a.Metrics,
	}), nil
}

// Close releases the database and redis connections
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close database")
		}
	}
}
