// Package licensegatekeeper собирает приложение: хранилище, сервисы,
// маршруты и HTTP-сервер с плавной остановкой.
package licensegatekeeper

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/license-gatekeeper/internal/http/handlers/admin/override"
	"github.com/magabrotheeeer/license-gatekeeper/internal/http/handlers/key/health"
	"github.com/magabrotheeeer/license-gatekeeper/internal/http/handlers/key/release"
	"github.com/magabrotheeeer/license-gatekeeper/internal/http/handlers/key/verify"
	"github.com/magabrotheeeer/license-gatekeeper/internal/http/middlewarectx"
	"github.com/magabrotheeeer/license-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/license-gatekeeper/internal/limiter"
	adminservice "github.com/magabrotheeeer/license-gatekeeper/internal/services/admin"
	verifyservice "github.com/magabrotheeeer/license-gatekeeper/internal/services/verification"
	"github.com/magabrotheeeer/license-gatekeeper/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	verificationService *verifyservice.VerificationService,
	overrideService *adminservice.OverrideService,
	db *repository.Storage, keyLimiter *limiter.KeyLimiter, maker jwt.Maker) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger, db).ServeHTTP)

		// Публичная поверхность верификации ключей
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/keys/verify", verify.New(logger, verificationService, keyLimiter).ServeHTTP)
			r.Post("/keys/release", release.New(logger, verificationService).ServeHTTP)
		})

		// Административная поверхность
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTAdminMiddleware(maker, logger))
			r.Post("/admin/override", override.New(logger, overrideService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
