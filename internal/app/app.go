package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	customMiddleware "licensegate/internal/middleware"
	"licensegate/internal/security"
	"licensegate/internal/services"
	"licensegate/internal/store"
	handlers "licensegate/internal/transport/http"
)

const (
	VERSION = "v2.1.0"
	AppName = "Premium Store License Verification API"
)

// Application represents the main application container
type Application struct {
	Config            *config.Config
	Router            *chi.Mux
	Server            *http.Server
	Store             store.Client
	ActivationService services.ActivationService
	HealthService     *services.HealthService
	Logger            *slog.Logger
	OTelProviders     *infrastructure.OTelProviders
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices wires the store client and the business services.
func (a *Application) initializeServices() error {
	storeCfg := a.Config.Store

	// Resolve an encrypted credential when no plaintext token was supplied.
	if storeCfg.Token == "" && storeCfg.EncryptedTokenFile != "" {
		token, err := security.LoadTokenFile(storeCfg.EncryptedTokenFile, os.Getenv("LGATE_CREDENTIALS_KEY"))
		if err != nil {
			return fmt.Errorf("failed to load encrypted store token: %w", err)
		}
		storeCfg.Token = token
		a.Logger.Info("Store token loaded from encrypted credential file",
			slog.String("path", storeCfg.EncryptedTokenFile))
	}

	storeClient, err := store.NewGitHubClient(storeCfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create store client: %w", err)
	}
	a.Store = storeClient

	var metrics *services.ActivationMetrics
	if a.OTelProviders.Meter != nil {
		metrics, err = services.NewActivationMetrics(a.OTelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create activation metrics: %w", err)
		}
	}

	a.ActivationService = services.NewActivationService(
		storeClient,
		storeCfg.KeysDocument,
		storeCfg.UsersDocument,
		metrics,
		a.Logger,
	)

	a.HealthService = services.NewHealthService(AppName, VERSION, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Middleware ordering: RequestID → RealIP → Logger → Recoverer
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

	// Probe and banner stay outside the rate limiter and timeout group so
	// infrastructure checks are never throttled.
	r.Get("/", healthHandler.Home)
	r.Get("/health", healthHandler.HealthCheck)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		if a.Config.Security.RateLimit.Enabled {
			limiter := customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			)
			r.Use(limiter.Handler)
		}

		verifyHandler := handlers.NewVerifyHandler(a.ActivationService, a.Config.Store.PurchaseURL, a.Logger)
		verifyHandler.RegisterRoutes(r)
	})

	a.Router = r
}

// createServer builds the HTTP server around the router.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the application and blocks until an interrupt arrives.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-sigChan
	a.Logger.InfoContext(ctx, "Received interrupt signal")

	return a.Stop(ctx)
}

// Start launches the HTTP server.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.Int("port", a.Config.Server.Port),
		slog.String("repository", a.Config.Store.Repository),
		slog.String("branch", a.Config.Store.Branch))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully shuts the application down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing log file", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}
