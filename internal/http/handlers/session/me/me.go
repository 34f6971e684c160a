// Package me возвращает контекст аутентификации текущей сессии.
package me

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/botgate/internal/http/response"
)

// Handler обрабатывает GET /api/v1/me.
type Handler struct {
	log *slog.Logger
}

// New создает Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Текущая сессия
// @Tags Session
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Security SessionCookie
// @Router /api/v1/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ac, ok := middlewarectx.AuthFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Unauthenticated("auth_required"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(ac))
}
