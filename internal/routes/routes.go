package routes

import (
	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/handlers"
	"github.com/Ahmed3117/silverbook-authguard/internal/middleware"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	deviceHandler *handlers.DeviceHandler,
	securityHandler *handlers.SecurityHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionValidator,
	sessionConfig auth.SessionConfig,
	userRepo auth.UserRepository,
) {
	authRateLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	adminRateLimit := middleware.RateLimitByIP(middleware.DefaultAdminRateLimit())

	// Public routes - no authentication required. The per-IP limiter is an
	// outer shield; the phone number block engine sits behind it.
	router.With(authRateLimit).Post("/auth/login", authHandler.Login)
	router.With(authRateLimit).Post("/auth/refresh", authHandler.Refresh)
	router.With(authRateLimit).Post("/auth/password-reset/request", authHandler.RequestPasswordReset)
	router.With(authRateLimit).Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)

	router.Handle("/metrics", promhttp.Handler())

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddlewareWithSessions(tokenManager, sessions, sessionConfig))

		r.Post("/auth/logout", authHandler.Logout)

		// Own device sessions
		r.Get("/devices", deviceHandler.MyDevices)
		r.Delete("/devices/{id}", deviceHandler.LogoutDevice)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(adminRateLimit)
			r.Use(auth.RequireUserType(userRepo, models.UserTypeAdmin))

			r.Get("/admin/security/block-status", securityHandler.BlockStatus)
			r.Post("/admin/security/unblock", securityHandler.Unblock)
			r.Get("/admin/security/blocks", securityHandler.ListBlocks)
			r.Get("/admin/security/blocks/{id}", securityHandler.GetBlock)
			r.Post("/admin/security/blocks/{id}/deactivate", securityHandler.DeactivateBlock)
			r.Get("/admin/security/attempts", securityHandler.ListAttempts)

			r.Get("/admin/users/{userID}/devices", deviceHandler.ListUserDevices)
			r.Delete("/admin/users/{userID}/devices", deviceHandler.RevokeAllUserDevices)
			r.Delete("/admin/users/{userID}/devices/{id}", deviceHandler.RevokeUserDevice)
			r.Put("/admin/users/{userID}/device-cap", deviceHandler.SetDeviceCap)
		})
	})
}
