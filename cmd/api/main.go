// Copyright (c) 2026 Pressdeck. All rights reserved.

// Command api is the entry point for the Pressdeck HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Build the crypto services (cipher, JWT).
//  7. Wire domain services and HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressdeck/pressdeck/internal/api"
	"github.com/pressdeck/pressdeck/internal/platform/config"
	"github.com/pressdeck/pressdeck/internal/platform/constants"
	"github.com/pressdeck/pressdeck/internal/platform/migration"
	pgstore "github.com/pressdeck/pressdeck/internal/platform/postgres"
	redisstore "github.com/pressdeck/pressdeck/internal/platform/redis"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/internal/security/audit"
	"github.com/pressdeck/pressdeck/internal/security/lockout"
	"github.com/pressdeck/pressdeck/internal/security/token"
	"github.com/pressdeck/pressdeck/internal/sites/magiclink"
	"github.com/pressdeck/pressdeck/internal/users/auth"
	"github.com/pressdeck/pressdeck/internal/users/session"
	"github.com/pressdeck/pressdeck/internal/users/twofactor"
)

// sweepInterval paces the background cleanup of expired tokens and sessions.
const sweepInterval = 15 * time.Minute

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "pressdeck"))
	slog.SetDefault(log)

	log.Info("[Pressdeck] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "pressdeck"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Crypto Services ────────────────────────────────────────────────
	cipher, err := sec.NewCipher(cfg.EncryptionKey)
	must(log, err, "initialize cipher")

	jwtSvc, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	auditStore := audit.NewPostgresStore(pool)
	auditRecorder := audit.NewRecorder(auditStore, log)
	auditService := audit.NewService(auditStore)
	auditHandler := audit.NewHandler(auditService)

	lockoutTracker := lockout.NewTracker(lockout.NewRedisStore(rdb))

	tokenBroker := token.NewBroker(token.NewPostgresStore(pool))

	sessionStore := session.NewPostgresStore(pool)
	sessionService := session.NewService(sessionStore, jwtSvc, auditRecorder)
	sessionHandler := session.NewHandler(sessionService)

	twoFactorService := twofactor.NewService(twofactor.NewPostgresStore(pool), cipher, auditRecorder)
	twoFactorHandler := twofactor.NewHandler(twoFactorService)

	mailer := &logMailer{log: log}

	accountStore := auth.NewPostgresStore(pool)
	authService := auth.NewService(
		accountStore, lockoutTracker, tokenBroker, sessionService,
		twoFactorService, mailer, auditRecorder,
	)
	authHandler := auth.NewHandler(authService, sessionService, !cfg.IsDevelopment())

	// TODO: swap passthroughSites for the fleet registry once the site
	// inventory service is wired in.
	magicLoginService := magiclink.NewService(
		tokenBroker, &passthroughSites{}, accountStore, mailer, auditRecorder,
	)
	magicLoginHandler := magiclink.NewHandler(magicLoginService)

	// ── 9. Background Sweepers ────────────────────────────────────────────
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go tokenBroker.RunSweeper(sweepCtx, sweepInterval, log)
	go sessionService.RunSweeper(sweepCtx, sweepInterval, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Auth:       authHandler,
		Session:    sessionHandler,
		TwoFactor:  twoFactorHandler,
		MagicLogin: magicLoginHandler,
		Audit:      auditHandler,
	}

	server := api.NewServer(sweepCtx, cfg, log, sessionService, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

// # Delivery Adapters

// logMailer writes outbound messages to the log instead of sending email.
// Real delivery is a separate service; the flows only need the interface.
type logMailer struct {
	log *slog.Logger
}

func (m *logMailer) SendPasswordReset(ctx context.Context, email, displayName, resetToken string) error {
	m.log.InfoContext(ctx, "outbound_password_reset",
		slog.String("email", email),
		slog.Int("token_length", len(resetToken)),
	)
	return nil
}

func (m *logMailer) SendMagicLoginCode(ctx context.Context, email, code, siteName string) error {
	m.log.InfoContext(ctx, "outbound_magic_login_code",
		slog.String("email", email),
		slog.String("site", siteName),
	)
	return nil
}

// passthroughSites resolves every site ID to itself. Stands in for the
// fleet registry so the magic-login flow is exercisable end to end.
type passthroughSites struct{}

func (passthroughSites) FindSite(ctx context.Context, siteID string) (*magiclink.Site, error) {
	return &magiclink.Site{ID: siteID, Name: siteID}, nil
}
