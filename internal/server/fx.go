// Package server builds the application's dependencies and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/api"
	"github.com/JakeFAU/shotapi/internal/cache"
	"github.com/JakeFAU/shotapi/internal/cachekey"
	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/clock/system"
	"github.com/JakeFAU/shotapi/internal/config"
	"github.com/JakeFAU/shotapi/internal/gate"
	"github.com/JakeFAU/shotapi/internal/hash/sha256"
	"github.com/JakeFAU/shotapi/internal/id/uuid"
	"github.com/JakeFAU/shotapi/internal/janitor"
	"github.com/JakeFAU/shotapi/internal/logging"
	"github.com/JakeFAU/shotapi/internal/metrics"
	"github.com/JakeFAU/shotapi/internal/pipeline"
	"github.com/JakeFAU/shotapi/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/shotapi/internal/publisher/pubsub"
	"github.com/JakeFAU/shotapi/internal/renderer/headless"
	shotstorage "github.com/JakeFAU/shotapi/internal/storage"
	gcsstorage "github.com/JakeFAU/shotapi/internal/storage/gcs"
	localstorage "github.com/JakeFAU/shotapi/internal/storage/local"
	memorystorage "github.com/JakeFAU/shotapi/internal/storage/memory"
	pgstore "github.com/JakeFAU/shotapi/internal/storage/postgres"
	redisstorage "github.com/JakeFAU/shotapi/internal/storage/redis"
)

// Rate-limit buckets idle for this long are dropped by the janitor.
const limiterIdle = 10 * time.Minute

// Options carries process-level settings that are not part of the config file.
type Options struct {
	// ConfigPath is watched for logging.level changes. Empty disables watching.
	ConfigPath string
	Version    string
	// Logger overrides the logger built from cfg.Logging.
	Logger *zap.Logger
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	level     zap.AtomicLevel
	apiServer *api.Server
	pipeline  *pipeline.Pipeline
	cache     *cache.Tiered
	gate      *gate.Gate
	janitor   *janitor.Janitor

	gcsClient *storage.Client
	redis     *redisstorage.Store
	publisher *gcppublisher.Publisher
	recorder  *pgstore.CaptureStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{cfg: cfg, logger: opts.Logger, level: zap.NewAtomicLevel()}
	if app.logger == nil {
		logger, level, err := logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger, app.level = logger, level
		zap.ReplaceGlobals(logger)
	}
	metrics.Init()

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("render", cfg.Render.Enabled),
		zap.Bool("auth", cfg.Auth.Enabled),
	)

	if err := app.build(ctx, opts); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.watchConfig(opts.ConfigPath)
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	l2, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	clock := system.New()
	a.cache = cache.New(l2, cache.Options{
		Capacity: a.cfg.Cache.Capacity,
		Clock:    clock,
		Logger:   a.logger,
	})

	a.gate, err = gate.New(gate.Options{
		MaxConcurrent: a.cfg.Render.MaxConcurrent,
		QueueTimeout:  a.cfg.Render.QueueTimeout,
		Launcher:      a.setupLauncher(),
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("render gate init failed: %w", err)
	}

	pipeOpts := pipeline.Options{
		DefaultTTL: a.cfg.Cache.DefaultTTL,
		Coalesce:   a.cfg.Cache.Coalesce,
		Topic:      a.cfg.PubSub.TopicName,
		Clock:      clock,
		IDs:        uuid.New(),
		Logger:     a.logger,
	}
	if err = a.setupDatabase(ctx); err != nil {
		return err
	}
	if a.recorder != nil {
		pipeOpts.Recorder = a.recorder
	}
	if err = a.setupPublisher(ctx); err != nil {
		return err
	}
	if a.publisher != nil {
		pipeOpts.Publisher = a.publisher
	}
	a.pipeline, err = pipeline.New(cachekey.New(sha256.New()), a.cache, a.gate, pipeOpts)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	limiter := ratelimit.New(a.cfg.RateLimit)
	a.apiServer = api.NewServer(a.pipeline, a.cache, a.gate, api.Options{
		Auth:    a.cfg.Auth,
		CORS:    a.cfg.CORS,
		Limiter: limiter,
		IDs:     uuid.New(),
		Version: opts.Version,
		Logger:  a.logger,
	})

	return a.setupJanitor(limiter)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.janitor.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return closeErr
	}
}

// Close releases resources in dependency order: pending capture events, scheduled jobs, the renderer,
// then the backing stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pipeline != nil {
		if err := a.pipeline.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.janitor != nil {
		if err := a.janitor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.gate != nil {
		if err := a.gate.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// Sync fails on stderr-backed loggers on some platforms; nothing useful can be done about it.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) setupStorage(ctx context.Context) (shotstorage.Provider, error) {
	var err error
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.gcsClient, a.cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs store init failed: %w", err)
		}
		a.logger.Info("using GCS cache backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		return store, nil
	case config.BackendRedis:
		a.redis, err = redisstorage.Dial(ctx, a.cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis store init failed: %w", err)
		}
		a.logger.Info("using redis cache backend", zap.String("addr", a.cfg.Storage.Redis.Addr))
		return a.redis, nil
	case config.BackendLocal:
		store, err := localstorage.New(a.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local store init failed: %w", err)
		}
		a.logger.Info("using local cache backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory cache backend")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("durable cache layer disabled")
		return shotstorage.NoOpProvider{}, nil
	}
}

func (a *App) setupLauncher() capture.Launcher {
	if !a.cfg.Render.Enabled {
		a.logger.Warn("rendering disabled; only cache hits will be served")
		return headless.NewNoop()
	}
	a.logger.Info("using headless renderer", zap.Int("max_concurrent", a.cfg.Render.MaxConcurrent))
	return headless.NewLauncher(a.cfg.Render.Config, a.logger)
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database DSN configured; capture records are not persisted")
		return nil
	}
	var err error
	a.recorder, err = pgstore.NewCaptureStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("capture store init failed: %w", err)
	}
	a.logger.Info("capture store initialized")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub project configured; capture events are not published")
		return nil
	}
	var err error
	a.publisher, err = gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

type job struct {
	name     string
	schedule string
	fn       func(context.Context)
}

func (a *App) setupJanitor(limiter *ratelimit.Limiter) error {
	a.janitor = janitor.New(a.logger, time.Minute)
	jobs := []job{
		{"cache-sweep", a.cfg.Cache.SweepSchedule, janitor.SweepJob(a.cache, a.logger)},
		{"cache-prune", a.cfg.Cache.PruneSchedule, janitor.PruneJob(a.cache, a.logger)},
		{"ratelimit-sweep", "@every 5m", janitor.LimiterJob(limiter, limiterIdle)},
	}
	if a.recorder != nil && a.cfg.DB.Retention > 0 {
		jobs = append(jobs, job{"capture-purge", a.cfg.DB.PurgeSchedule, janitor.PurgeJob(a.recorder, a.cfg.DB.Retention, a.logger)})
	}
	for _, j := range jobs {
		if err := a.janitor.Add(j.name, j.schedule, j.fn); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	return nil
}

func (a *App) watchConfig(path string) {
	err := config.Watch(path, func(cfg config.Config) {
		lvl, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			a.logger.Warn("ignoring invalid log level", zap.String("level", cfg.Logging.Level))
			return
		}
		if lvl != a.level.Level() {
			a.level.SetLevel(lvl)
			a.logger.Info("log level changed", zap.Stringer("level", lvl))
		}
	}, func(err error) {
		a.logger.Warn("ignoring invalid config change", zap.Error(err))
	})
	if err != nil {
		a.logger.Warn("config watch disabled", zap.Error(err))
	}
}

// ClearCache empties the durable layer of the configured cache without starting the service.
func ClearCache(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	app := &App{cfg: cfg, logger: logger}
	defer app.closeInfrastructure()

	l2, err := app.setupStorage(ctx)
	if err != nil {
		return err
	}
	if err := cache.New(l2, cache.Options{Logger: logger}).Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	logger.Info("cache cleared", zap.String("storage", cfg.Storage.Backend))
	return nil
}
