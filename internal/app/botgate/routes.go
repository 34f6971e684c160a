// Package botgate собирает HTTP-приложение: вебхук платформы, вход по ссылке
// и API сессий.
package botgate

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/admin/revoke"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/auth/callback"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/health"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/session/logoutall"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/session/me"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/subscription/read"
	tierread "github.com/magabrotheeeer/botgate/internal/http/handlers/tier/read"
	"github.com/magabrotheeeer/botgate/internal/http/handlers/webhook"
	"github.com/magabrotheeeer/botgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/session"
)

// Catalog чтение тарифов и подписок.
type Catalog interface {
	read.Service
	list.Service
	tierread.Service
}

// Deps зависимости маршрутов.
type Deps struct {
	Dispatcher webhook.Dispatcher
	Tokens     callback.Redeemer
	Sessions   callback.SessionIssuer
	Resolver   session.CredentialResolver
	Rotator    logoutall.Rotator
	Catalog    Catalog
	DB         health.Pinger
	Metrics    http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, cfg *config.Config, logger *slog.Logger, deps Deps) {
	// Глобальные middleware
	r.Use(middleware.RequestID)
	// Без своего прокси лимит считается по адресу соединения
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
	)

	limiter := middlewarectx.NewIPLimiter(cfg.RateLimit, cfg.RateBurst)

	r.Get("/health", health.New(logger, deps.DB).ServeHTTP)
	r.Handle("/metrics", deps.Metrics)
	r.Get("/docs/*", httpSwagger.WrapHandler)

	// Вебхук платформы: без лимита, ответ всегда 200
	r.Post("/webhook/{secret}", webhook.New(logger, deps.Dispatcher, cfg.Webhook.Secret, cfg.MaxBodyBytes).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
		r.Get("/auth/callback", callback.New(logger, deps.Tokens, deps.Sessions, callback.Options{
			CookieName:      cfg.CookieName,
			CookieSecure:    cfg.CookieSecure,
			LoginPath:       cfg.LoginPath,
			DefaultRedirect: cfg.DefaultPath,
		}).ServeHTTP)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
		r.Use(middlewarectx.SessionMiddleware(deps.Resolver, cfg.CookieName, logger))

		r.Get("/me", me.New(logger).ServeHTTP)
		r.Get("/subscriptions", list.New(logger, deps.Catalog).ServeHTTP)
		r.Get("/subscriptions/{serviceID}", read.New(logger, deps.Catalog).ServeHTTP)
		r.Get("/tiers/{tierID}", tierread.New(logger, deps.Catalog).ServeHTTP)
		r.Post("/sessions/logout-all", logoutall.New(logger, deps.Rotator, cfg.CookieName, cfg.CookieSecure).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireRole(logger, models.RoleStaffSupport, models.RoleStaffAdmin))
			r.Post("/admin/identities/{identityID}/revoke", revoke.New(logger, deps.Rotator).ServeHTTP)
		})
	})
}
