package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog/internal/app"
	"catalog/internal/cache"
	"catalog/internal/config"
	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/storage"
	"catalog/pkg/logger"
	"catalog/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Server.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}

// application is the wired service plus the resources it owns.
type application struct {
	http    *fiber.App
	events  *rabbitmq.Client // nil when RABBITMQ_URL is empty
	closers []func() error
	log     *zap.Logger
}

// newApplication connects every backing service named in cfg and builds the
// HTTP application on top of them.
func newApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (a *application, err error) {
	a = &application{log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	checks := make(map[string]handlers.HealthCheck)

	// --- Persistence ---
	var (
		productRepo repositories.ProductRepository
		userRepo    repositories.UserRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		productRepo = repositories.NewMemoryProductRepository()
		userRepo = repositories.NewMemoryUserRepository()
	default:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		productRepo = repositories.NewGORMProductRepository(db)
		userRepo = repositories.NewGORMUserRepository(db)
	}

	if cfg.Database.Seed {
		if _, err := database.SeedProducts(ctx, productRepo, time.Now().UTC(), log); err != nil {
			return nil, err
		}
	}

	// --- Listing cache ---
	var store cache.Store
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		store = cache.NewRedisStore(rdb)
		log.Info("using redis listing cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = cache.NewMemoryStore(cfg.Redis.TTL, 2*cfg.Redis.TTL)
	}
	productRepo = repositories.NewCachingProductRepository(productRepo, store, cfg.Redis.TTL, "", log)

	// --- Product events ---
	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mq.Close)
		a.events = mq
		publisher = mq
	}

	hasher, err := services.NewPasswordHasher(cfg.Password.Scheme)
	if err != nil {
		return nil, err
	}

	images := storage.NewFileStore(afero.NewOsFs(), cfg.Upload)

	authService := services.NewAuthService(userRepo, hasher, cfg.JWT, log)
	productService := services.NewProductService(productRepo, images, publisher, cfg.Pagination, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.http = app.New(cfg, app.Deps{
		Auth:     authService,
		Products: productService,
		Images:   images,
		Registry: registry,
		Checks:   checks,
		Log:      log,
	})
	return a, nil
}

// Close releases backing services in reverse order of acquisition.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// run serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	a, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", zap.String("addr", cfg.Server.Port))
		if err := a.http.Listen(cfg.Server.Port); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if a.events != nil {
		g.Go(func() error {
			if err := a.events.ConsumeProductEvents(gctx, auditProductEvent(log)); err != nil {
				log.Warn("product event consumer stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		return a.http.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
	})

	return g.Wait()
}

// auditProductEvent writes every consumed product event to the log.
func auditProductEvent(log *zap.Logger) rabbitmq.EventHandler {
	return func(_ context.Context, e models.ProductEvent) error {
		log.Info("product event",
			zap.String("type", e.Type),
			zap.Uint("product_id", e.ProductID),
			zap.String("name", e.Name),
			zap.Int("version", e.Version),
			zap.Time("occurred_at", e.OccurredAt),
		)
		return nil
	}
}
