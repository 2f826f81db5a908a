package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/background"
	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/handlers"
	middlewareCustom "github.com/Ahmed3117/silverbook-authguard/internal/middleware"
	"github.com/Ahmed3117/silverbook-authguard/internal/repositories"
	"github.com/Ahmed3117/silverbook-authguard/internal/routes"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	pkghttp "github.com/Ahmed3117/silverbook-authguard/pkg/http"
	pkglogger "github.com/Ahmed3117/silverbook-authguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	blockRepo := repositories.NewBlockRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	resetCodeRepo := repositories.NewResetCodeRepository(db)

	// Initialize cleanup manager
	retention := time.Duration(cfg.Auth.RetentionDays) * 24 * time.Hour
	cleanupManager := background.NewCleanupManager(attemptRepo, blockRepo, resetCodeRepo, logger, cfg.Auth.CleanupInterval, retention)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)
	timingDelay := auth.NewTimingDelay(cfg.Auth.TimingDelayBase, cfg.Auth.TimingDelayJitter)

	// Optional SES alerting on escalated blocks
	var alerter services.BlockAlerter
	if cfg.Alerts.Enabled {
		alertService, err := services.NewAlertService(cfg.Alerts, logger)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = alertService
	}

	// Initialize services
	blockService := services.NewBlockService(attemptRepo, blockRepo, cfg.Security, alerter, logger, auditLogger)
	sessionService := services.NewSessionService(sessionRepo, userRepo, cfg.Devices, logger, auditLogger)
	authService := services.NewAuthService(userRepo, blockService, sessionService, tokenManager, timingDelay, cfg.Devices, logger, auditLogger)
	resetNotifier := services.NewLogNotifier(logger, cfg.Server.Env)
	resetService := services.NewPasswordResetService(userRepo, resetCodeRepo, blockService, sessionService, resetNotifier, cfg.Auth.ResetCodeExpiry, timingDelay, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, resetService, ipConfig)
	deviceHandler := handlers.NewDeviceHandler(sessionService)
	securityHandler := handlers.NewSecurityHandler(blockService, operatorFromContext)

	// Setup router
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.CORSOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	sessionConfig := auth.SessionConfig{AllowLegacyTokens: cfg.Devices.AllowLegacyTokens}
	routes.RegisterRoutes(router, authHandler, deviceHandler, securityHandler, tokenManager, sessionService, sessionConfig, userRepo)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// operatorFromContext resolves the acting operator for audit trails on
// manual unblock and device revocation endpoints
func operatorFromContext(r *http.Request) string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return claims.UserID
	}
	return ""
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
