// Package logoutall завершает все сессии текущей личности.
//
// Обработчик меняет security stamp, после чего любая ранее выданная
// сессия отклоняется с причиной stamp_revoked, и очищает cookie.
package logoutall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
)

// Rotator меняет security stamp личности.
type Rotator interface {
	Rotate(ctx context.Context, identityID string) error
}

// Handler обрабатывает POST /api/v1/sessions/logout-all.
type Handler struct {
	log          *slog.Logger
	rotator      Rotator
	cookieName   string
	cookieSecure bool
}

// New создает Handler.
func New(log *slog.Logger, rotator Rotator, cookieName string, cookieSecure bool) *Handler {
	return &Handler{
		log:          log,
		rotator:      rotator,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
}

// ServeHTTP godoc
// @Summary Выход на всех устройствах
// @Tags Session
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/sessions/logout-all [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.logoutall"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	ac, ok := middlewarectx.AuthFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Unauthenticated("auth_required"))
		return
	}

	if err := h.rotator.Rotate(r.Context(), ac.IdentityID); err != nil {
		log.Error("failed to rotate stamp", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke sessions"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info("all sessions revoked", slog.String("identity_id", ac.IdentityID))
	render.JSON(w, r, response.OK())
}
