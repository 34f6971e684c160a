package middlewarectx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// RequireRole пропускает только запросы с одной из ролей.
// Должен стоять после SessionMiddleware.
func RequireRole(log *slog.Logger, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := AuthFromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Unauthenticated("auth_required"))
				return
			}
			if !slices.Contains(roles, ac.Role) {
				log.Warn("role not allowed",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("identity_id", ac.IdentityID),
					slog.String("role", string(ac.Role)))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
