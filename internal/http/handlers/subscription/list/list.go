// Package list возвращает все подписки текущей личности.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// Service описывает интерфейс получения списка подписок.
type Service interface {
	ListSubscriptions(ctx context.Context, identityID string) ([]*models.Subscription, error)
}

// Handler обрабатывает GET /api/v1/subscriptions.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список подписок
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.Subscription}
// @Failure 401 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/subscriptions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.list"

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

	subs, err := h.service.ListSubscriptions(r.Context(), ac.IdentityID)
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list subscriptions"))
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscriptions": subs,
	}))
}
