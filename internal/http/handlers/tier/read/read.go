// Package read возвращает тариф: период оплаты и цену.
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

	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Request параметры пути.
type Request struct {
	TierID string `validate:"required,uuid"`
}

// Service описывает интерфейс чтения тарифа.
type Service interface {
	GetTier(ctx context.Context, tierID string) (*models.Tier, error)
}

// Handler обрабатывает GET /api/v1/tiers/{tierID}.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Тариф
// @Tags Tiers
// @Produce  json
// @Param tierID path string true "ID тарифа"
// @Success 200 {object} response.Response{data=models.Tier}
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/tiers/{tierID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tier.read"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req := Request{TierID: chi.URLParam(r, "tierID")}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	tier, err := h.service.GetTier(r.Context(), req.TierID)
	if errors.Is(err, storage.ErrTierNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("tier not found"))
		return
	}
	if err != nil {
		log.Error("failed to read tier", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read tier"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(tier))
}
