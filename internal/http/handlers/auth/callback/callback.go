// Package callback реализует погашение ссылки входа из бота.
//
// При успехе выставляет cookie сессии и перенаправляет на redirect
// (только относительный путь того же origin). При отказе перенаправляет
// на страницу входа с параметром reason.
package callback

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/magictoken"
)

// Причины отказа, передаваемые на страницу входа.
const (
	ReasonLinkInvalid    = "link_invalid"
	ReasonSessionExpired = "session_expired"
	ReasonIdentityDenied = "identity_denied"
	ReasonAccessDenied   = "access_denied"
	ReasonAuthRequired   = "auth_required"
)

// Request параметры строки запроса.
type Request struct {
	Token    string `validate:"required,max=128,printascii"`
	Redirect string `validate:"max=2048"`
}

// Redeemer гасит одноразовый токен.
type Redeemer interface {
	Redeem(ctx context.Context, raw string) (*models.Identity, error)
}

// SessionIssuer выпускает подписанную сессию.
type SessionIssuer interface {
	Issue(identity *models.Identity) (string, time.Time, error)
}

// Options настройки cookie и перенаправлений.
type Options struct {
	CookieName      string
	CookieSecure    bool
	LoginPath       string
	DefaultRedirect string
}

// Handler обрабатывает GET /auth/callback.
type Handler struct {
	log      *slog.Logger
	tokens   Redeemer
	sessions SessionIssuer
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

// New создает Handler.
func New(log *slog.Logger, tokens Redeemer, sessions SessionIssuer, opts Options) *Handler {
	if opts.DefaultRedirect == "" {
		opts.DefaultRedirect = "/"
	}
	return &Handler{
		log:      log,
		tokens:   tokens,
		sessions: sessions,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// ServeHTTP godoc
// @Summary Вход по ссылке из бота
// @Description Гасит одноразовый токен, ставит cookie сессии и перенаправляет.
// @Tags Auth
// @Param token query string true "Одноразовый токен"
// @Param redirect query string false "Относительный путь после входа"
// @Success 302 "Перенаправление на redirect или на страницу входа с reason"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Router /auth/callback [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.callback"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	q := r.URL.Query()
	req := Request{Token: q.Get("token"), Redirect: q.Get("redirect")}
	if req.Token == "" {
		h.fail(w, r, ReasonAuthRequired)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		h.fail(w, r, ReasonLinkInvalid)
		return
	}

	target, ok := SafeRedirect(req.Redirect, h.opts.DefaultRedirect)
	if !ok {
		log.Warn("rejected redirect target", slog.String("redirect", req.Redirect))
		h.fail(w, r, ReasonAccessDenied)
		return
	}

	identity, err := h.tokens.Redeem(r.Context(), req.Token)
	if err != nil {
		reason := redeemReason(err)
		if reason == ReasonAccessDenied {
			log.Error("failed to redeem token", sl.Err(err))
		} else {
			log.Info("token rejected", slog.String("reason", reason))
		}
		h.fail(w, r, reason)
		return
	}

	credential, expiresAt, err := h.sessions.Issue(identity)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))
		h.fail(w, r, ReasonAccessDenied)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    credential,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(h.now()).Seconds()),
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	log.Info("session issued", slog.String("identity_id", identity.ID))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.opts.LoginPath + "?" + url.Values{"reason": {reason}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func redeemReason(err error) string {
	switch {
	case errors.Is(err, magictoken.ErrTokenNotFound), errors.Is(err, magictoken.ErrTokenAlreadyUsed):
		return ReasonLinkInvalid
	case errors.Is(err, magictoken.ErrTokenExpired):
		return ReasonSessionExpired
	case errors.Is(err, magictoken.ErrIdentityDenied):
		return ReasonIdentityDenied
	default:
		return ReasonAccessDenied
	}
}

// SafeRedirect возвращает путь для перенаправления. Пустое значение
// заменяется на def. Допускается только абсолютный путь без схемы и хоста.
func SafeRedirect(raw, def string) (string, bool) {
	if raw == "" {
		return def, true
	}
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return "", false
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	return u.RequestURI(), true
}
