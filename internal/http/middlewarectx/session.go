// Package middlewarectx содержит HTTP middleware для аутентификации по сессии,
// проверки ролей и ограничения частоты запросов.
//
// SessionMiddleware разрешает сессию из cookie или заголовка Authorization
// и кладёт AuthContext в контекст запроса. При отказе отвечает 401
// с машинной причиной.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/services/session"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Auth ключ контекста аутентификации.
const Auth Key = "auth"

// WithAuth кладёт контекст аутентификации в ctx.
func WithAuth(ctx context.Context, ac *session.AuthContext) context.Context {
	return context.WithValue(ctx, Auth, ac)
}

// AuthFromContext достаёт контекст аутентификации.
func AuthFromContext(ctx context.Context) (*session.AuthContext, bool) {
	ac, ok := ctx.Value(Auth).(*session.AuthContext)
	return ac, ok && ac != nil
}

// SessionMiddleware возвращает middleware, который разрешает сессию через backend.
func SessionMiddleware(backend session.CredentialResolver, cookieName string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SessionMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			ac, err := session.ResolveRequest(r, cookieName, backend)
			if err != nil {
				reason, ok := session.ReasonOf(err)
				if !ok {
					log.Error("failed to resolve session", sl.Err(err))
					render.Status(r, http.StatusServiceUnavailable)
					render.JSON(w, r, response.Error("session backend unavailable"))
					return
				}
				if !errors.Is(err, session.ErrAuthRequired) {
					log.Info("session rejected", slog.String("reason", reason))
				}
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Unauthenticated(reason))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), ac)))
		})
	}
}
