// Package webhook реализует приём обновлений платформы мессенджера.
//
// Обработчик всегда отвечает 200 {"ok":true}: при неверном секрете,
// слишком большом теле и после передачи обновления в фоновую обработку.
// Результат обработки никогда не ожидается в запросе.
package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/botgate/internal/http/response"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
)

// Dispatcher принимает тело обновления в фоновую обработку.
type Dispatcher interface {
	Submit(ctx context.Context, body []byte) error
}

// Handler обрабатывает POST /webhook/{secret}.
type Handler struct {
	log        *slog.Logger
	dispatcher Dispatcher
	secret     [sha256.Size]byte
	maxBody    int64
}

// New создает Handler. Секрет сравнивается по хешу за постоянное время.
func New(log *slog.Logger, dispatcher Dispatcher, secret string, maxBody int64) *Handler {
	return &Handler{
		log:        log,
		dispatcher: dispatcher,
		secret:     sha256.Sum256([]byte(secret)),
		maxBody:    maxBody,
	}
}

// ServeHTTP godoc
// @Summary Входящее обновление платформы
// @Description Всегда подтверждает получение. Обработка идёт в фоне.
// @Tags Webhook
// @Accept  json
// @Produce  json
// @Param secret path string true "Общий секрет вебхука"
// @Success 200 {object} response.Ack
// @Router /webhook/{secret} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	defer render.JSON(w, r, response.Ack{OK: true})

	got := sha256.Sum256([]byte(chi.URLParam(r, "secret")))
	if subtle.ConstantTimeCompare(got[:], h.secret[:]) != 1 {
		log.Warn("webhook secret mismatch")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		log.Error("failed to read update body", sl.Err(err))
		return
	}
	if int64(len(body)) > h.maxBody {
		log.Warn("update body too large", slog.Int("size", len(body)))
		return
	}

	if err := h.dispatcher.Submit(r.Context(), body); err != nil {
		log.Error("failed to submit update", sl.Err(err))
	}
}
