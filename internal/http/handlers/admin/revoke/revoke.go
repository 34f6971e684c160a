// Package revoke реализует удалённый сброс сессий личности оператором поддержки.
package revoke

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
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Request параметры пути.
type Request struct {
	IdentityID string `validate:"required,uuid"`
}

// Rotator меняет security stamp личности.
type Rotator interface {
	Rotate(ctx context.Context, identityID string) error
}

// Handler обрабатывает POST /api/v1/admin/identities/{identityID}/revoke.
type Handler struct {
	log      *slog.Logger
	rotator  Rotator
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, rotator Rotator) *Handler {
	return &Handler{
		log:      log,
		rotator:  rotator,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Сброс всех сессий личности
// @Description Доступно ролям staff_support и staff_admin.
// @Tags Admin
// @Produce  json
// @Param identityID path string true "ID личности"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/admin/identities/{identityID}/revoke [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.revoke"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req := Request{IdentityID: chi.URLParam(r, "identityID")}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.rotator.Rotate(r.Context(), req.IdentityID)
	if errors.Is(err, storage.ErrIdentityNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("identity not found"))
		return
	}
	if err != nil {
		log.Error("failed to rotate stamp", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke sessions"))
		return
	}

	actor := ""
	if ac, ok := middlewarectx.AuthFromContext(r.Context()); ok {
		actor = ac.IdentityID
	}
	log.Info("sessions revoked by operator",
		slog.String("identity_id", req.IdentityID),
		slog.String("actor_id", actor))
	render.JSON(w, r, response.OK())
}
