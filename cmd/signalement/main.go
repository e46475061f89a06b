package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/analytics"
	"github.com/sos-villages/signalement/internal/audit"
	caseapi "github.com/sos-villages/signalement/internal/case/api"
	"github.com/sos-villages/signalement/internal/case/domain"
	caseinfra "github.com/sos-villages/signalement/internal/case/infrastructure"
	caseservice "github.com/sos-villages/signalement/internal/case/service"
	"github.com/sos-villages/signalement/internal/coordination"
	"github.com/sos-villages/signalement/internal/directory"
	"github.com/sos-villages/signalement/internal/kurrentdb"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/database"
	"github.com/sos-villages/signalement/internal/shared/events"
	"github.com/sos-villages/signalement/internal/shared/logging"
	"github.com/sos-villages/signalement/internal/shared/metrics"
	secmiddleware "github.com/sos-villages/signalement/internal/shared/middleware"
	"github.com/sos-villages/signalement/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	KurrentDB *kurrentdb.Client
	Redis     *redis.Client
	Stores    *Stores
}

// Stores groups the persistence ports behind the selected backend
type Stores struct {
	Cases     domain.Repository
	Directory directory.Repository
	Inbox     notification.Store
	Audit     audit.Reader
	Analytics analytics.CaseSource
	Villages  analytics.VillageSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "signalement")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &App{Config: cfg, Logger: logger}

	stores, err := openStores(ctx, app)
	if err != nil {
		return err
	}
	app.Stores = stores
	if app.DB != nil {
		defer app.DB.Close()
	}

	files, err := openFileStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	publisher := openPublisher(ctx, app)
	defer publisher.Close()

	dirService := directory.NewService(stores.Directory, cfg.Auth, logger)
	if cfg.Server.IsDevelopment() && cfg.Server.SeedPassword != "" {
		if err := dirService.Seed(ctx, directory.DevelopmentVillages, directory.DevelopmentUsers, cfg.Server.SeedPassword); err != nil {
			return fmt.Errorf("failed to seed directory: %w", err)
		}
	}

	dispatcher := notification.NewDispatcher(notificationProviders(cfg.Notification, logger), notification.DispatcherConfig{
		Workers:       cfg.Notification.Workers,
		BufferSize:    cfg.Notification.BufferSize,
		RetryAttempts: cfg.Notification.RetryAttempts,
		RetryDelay:    cfg.Notification.RetryDelay,
		SendTimeout:   cfg.Notification.SendTimeout,
	}, logger)
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer dispatcher.Stop()

	caseService := caseservice.New(stores.Cases, files, dispatcher, publisher, logger, caseservice.Config{
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})

	if cfg.Reminder.Enabled {
		var locker coordination.Locker
		if cfg.Redis.Enabled {
			client, err := coordination.NewRedisClient(ctx, cfg.Redis.URL)
			if err != nil {
				logger.Warn("redis not available, reminder sweep runs unlocked", zap.Error(err))
			} else {
				app.Redis = client
				defer client.Close()
				locker = coordination.NewRedisLocker(client)
			}
		}
		reminders := coordination.NewReminderService(stores.Cases, dispatcher, locker, coordination.FromConfig(cfg.Reminder), logger)
		reminders.Start(ctx)
		defer reminders.Stop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))
	r.Use(secmiddleware.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	dirHandler := directory.NewHandler(dirService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", dirHandler.LoginRoutes())

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth))

			r.Mount("/villages", dirHandler.VillageRoutes())
			r.Mount("/users", dirHandler.UserRoutes())
			r.Mount("/cases", caseapi.NewHandler(caseService, cfg.Upload.MaxBytes).Routes())
			r.Mount("/notifications", notification.NewHandler(notification.NewInbox(stores.Inbox, logger)).Routes())
			r.Mount("/audit", audit.NewHandler(stores.Audit).Routes())
			r.Mount("/analytics", analytics.NewHandler(analytics.NewService(stores.Analytics, stores.Villages)).Routes())
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
			zap.String("store", cfg.Database.Driver),
			zap.Bool("minio", cfg.Storage.Enabled),
			zap.Bool("kurrentdb", app.KurrentDB != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStores selects the persistence backend. The memory store keeps
// everything in process and is meant for development and demos.
func openStores(ctx context.Context, app *App) (*Stores, error) {
	if app.Config.Database.Driver == "memory" {
		app.Logger.Warn("using in-memory store, data is lost on restart")
		mem := caseinfra.NewMemoryStore()
		return &Stores{
			Cases:     mem,
			Directory: mem,
			Inbox:     mem,
			Audit:     mem.Audit(),
			Analytics: mem,
			Villages:  mem,
		}, nil
	}

	db, err := database.New(ctx, app.Config.Database)
	if err != nil {
		return nil, err
	}
	if _, err := database.Migrate(ctx, db.Pool, app.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	app.DB = db

	dir := directory.NewPostgresRepository(db.Pool)
	cases := caseinfra.NewPostgresRepository(db.Pool)
	return &Stores{
		Cases:     cases,
		Directory: dir,
		Inbox:     notification.NewPostgresStore(db.Pool),
		Audit:     audit.NewRepository(db.Pool),
		Analytics: cases,
		Villages:  dir,
	}, nil
}

func openFileStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.FileStore, error) {
	if !cfg.Storage.Enabled {
		logger.Warn("object storage disabled, case files are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewMinIOStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open object storage: %w", err)
	}
	return store, nil
}

// openPublisher connects to KurrentDB when enabled. Event streaming is
// optional: failures fall back to a no-op publisher.
func openPublisher(ctx context.Context, app *App) events.Publisher {
	if !app.Config.KurrentDB.Enabled {
		return events.NoopPublisher{}
	}

	client, err := kurrentdb.Dial(ctx, kurrentdb.FromConfig(app.Config.KurrentDB), 10*time.Second, app.Logger)
	if err != nil {
		app.Logger.Warn("KurrentDB not available, running without event streaming", zap.Error(err))
		return events.NoopPublisher{}
	}

	app.KurrentDB = client
	return kurrentdb.NewPublisher(client)
}

// notificationProviders uses the real providers when credentials are set
// and logs messages otherwise
func notificationProviders(cfg config.NotificationConfig, logger *zap.Logger) map[notification.Channel]notification.Provider {
	console := notification.NewConsoleProvider(logger)
	providers := map[notification.Channel]notification.Provider{
		notification.ChannelEmail:    console,
		notification.ChannelWhatsApp: console,
	}
	if cfg.ResendAPIKey != "" {
		providers[notification.ChannelEmail] = notification.NewResendEmailProvider(cfg.ResendAPIKey, cfg.MailFrom)
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFrom != "" {
		providers[notification.ChannelWhatsApp] = notification.NewTwilioWhatsAppProvider(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}
	return providers
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(ctx); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.KurrentDB != nil {
			if err := app.KurrentDB.HealthCheck(ctx); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		// Check Redis
		if app.Redis != nil {
			if err := app.Redis.Ping(ctx).Err(); err != nil {
				checks["redis"] = "not ready: " + err.Error()
			} else {
				checks["redis"] = "ready"
			}
		} else {
			checks["redis"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
