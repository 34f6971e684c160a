// Package read реализует HTTP-обработчик для получения подписки текущей личности на сервис.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/botgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Request параметры пути.
type Request struct {
	ServiceID string `validate:"required,max=64,printascii"`
}

// Service описывает интерфейс чтения подписки.
type Service interface {
	GetSubscription(ctx context.Context, identityID, serviceID string) (*models.Subscription, error)
}

// Handler обрабатывает GET /api/v1/subscriptions/{serviceID}.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подписка на сервис
// @Tags Subscriptions
// @Produce  json
// @Param serviceID path string true "Идентификатор сервиса"
// @Success 200 {object} response.Response{data=models.Subscription}
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/subscriptions/{serviceID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.read"

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

	req := Request{ServiceID: chi.URLParam(r, "serviceID")}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), ac.IdentityID, req.ServiceID)
	if errors.Is(err, storage.ErrSubscriptionNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("subscription not found"))
		return
	}
	if err != nil {
		log.Error("failed to read subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read subscription"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(sub))
}
