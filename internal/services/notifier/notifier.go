// Package notifier отправляет пользователю сообщения бота.
//
// Ошибки исходящих вызовов логируются и не повторяются: вызывающий код
// не ждёт доставки и не откатывает из-за неё состояние.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// BotAPI исходящие методы платформы.
type BotAPI interface {
	SendMessage(ctx context.Context, req botapi.SendMessageRequest) error
	SendInvoice(ctx context.Context, req botapi.SendInvoiceRequest) error
	AnswerPreCheckoutQuery(ctx context.Context, req botapi.AnswerPreCheckoutQueryRequest) error
	AnswerCallbackQuery(ctx context.Context, req botapi.AnswerCallbackQueryRequest) error
}

// Notifier сообщения бота пользователю.
type Notifier struct {
	api           BotAPI
	providerToken string
	supportWindow time.Duration
	log           *slog.Logger
}

// New создаёт Notifier.
func New(api BotAPI, providerToken string, supportWindow time.Duration, log *slog.Logger) *Notifier {
	return &Notifier{
		api:           api,
		providerToken: providerToken,
		supportWindow: supportWindow,
		log:           log,
	}
}

// Text отправляет простое сообщение.
func (n *Notifier) Text(ctx context.Context, chatID int64, text string) {
	n.send(ctx, "notifier.Text", botapi.SendMessageRequest{ChatID: chatID, Text: text})
}

// LoginLink отправляет ссылку входа. Превью отключено: его загрузка
// платформой погасила бы токен раньше пользователя.
func (n *Notifier) LoginLink(ctx context.Context, chatID int64, link string, ttl time.Duration) {
	n.send(ctx, "notifier.LoginLink", botapi.SendMessageRequest{
		ChatID: chatID,
		Text: fmt.Sprintf("Ссылка для входа действует %d мин. и сработает один раз.",
			int(math.Ceil(ttl.Minutes()))),
		ReplyMarkup: &botapi.InlineKeyboardMarkup{
			InlineKeyboard: [][]botapi.InlineKeyboardButton{{{Text: "Войти", URL: link}}},
		},
		LinkPreviewOptions: &botapi.LinkPreviewOptions{IsDisabled: true},
	})
}

// AnswerCallback подтверждает нажатие кнопки.
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) {
	const op = "notifier.AnswerCallback"
	err := n.api.AnswerCallbackQuery(ctx, botapi.AnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		n.log.Error("failed to answer callback", slog.String("op", op), sl.Err(err))
	}
}

// Invoice отправляет счёт. Payload счёта равен id записи в журнале платежей.
func (n *Notifier) Invoice(ctx context.Context, chatID int64, payment *models.PaymentRecord, tier *models.Tier) error {
	const op = "notifier.Invoice"

	interval := tier.Interval
	if interval == "" {
		interval = models.IntervalMonth
	}
	err := n.api.SendInvoice(ctx, botapi.SendInvoiceRequest{
		ChatID:        chatID,
		Title:         tier.Name,
		Description:   fmt.Sprintf("Подписка «%s», период: %s", tier.Name, intervalName(interval)),
		Payload:       payment.ID,
		ProviderToken: n.providerToken,
		Currency:      payment.Currency,
		Prices:        []botapi.LabeledPrice{{Label: tier.Name, Amount: payment.Amount}},
	})
	if err != nil {
		n.log.Error("failed to send invoice", slog.String("op", op),
			slog.String("payment_id", payment.ID), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AnswerPreCheckout отвечает на запрос перед списанием.
func (n *Notifier) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, reason string) {
	const op = "notifier.AnswerPreCheckout"
	req := botapi.AnswerPreCheckoutQueryRequest{PreCheckoutQueryID: queryID, OK: ok}
	if !ok {
		req.ErrorMessage = reason
	}
	if err := n.api.AnswerPreCheckoutQuery(ctx, req); err != nil {
		n.log.Error("failed to answer pre-checkout", slog.String("op", op),
			slog.String("query_id", queryID), sl.Err(err))
	}
}

// PaymentConfirmed сообщает об успешной оплате и сроке доступа.
func (n *Notifier) PaymentConfirmed(ctx context.Context, chatID int64, expiresAt time.Time) {
	n.send(ctx, "notifier.PaymentConfirmed", botapi.SendMessageRequest{
		ChatID: chatID,
		Text:   "Оплата получена. Доступ активен до " + expiresAt.UTC().Format("02.01.2006 15:04 UTC") + ".",
	})
}

// PaymentDelayed сообщает, что оплата получена, но журнал ещё не обновлён.
func (n *Notifier) PaymentDelayed(ctx context.Context, chatID int64) {
	n.send(ctx, "notifier.PaymentDelayed", botapi.SendMessageRequest{
		ChatID: chatID,
		Text: fmt.Sprintf("Оплата получена, синхронизация журнала платежей ещё не завершена. "+
			"Если доступ не появится в течение %d мин., обратитесь в поддержку.",
			int(math.Ceil(n.supportWindow.Minutes()))),
	})
}

// PaymentRejected сообщает, что оплата не принята.
func (n *Notifier) PaymentRejected(ctx context.Context, chatID int64) {
	n.send(ctx, "notifier.PaymentRejected", botapi.SendMessageRequest{
		ChatID: chatID,
		Text:   "Оплата не совпадает со счётом и не была принята. Обратитесь в поддержку.",
	})
}

// ExpiringReminder напоминает о скором окончании подписки.
// Возвращает ошибку только для временных сбоев, чтобы сообщение можно было повторить.
func (n *Notifier) ExpiringReminder(ctx context.Context, r models.ExpiringReminder) error {
	const op = "notifier.ExpiringReminder"

	err := n.api.SendMessage(ctx, botapi.SendMessageRequest{
		ChatID: r.ExternalID,
		Text: fmt.Sprintf("Подписка «%s» заканчивается %s. Продлите её командой /buy.",
			r.TierName, r.ExpiresAt.UTC().Format("02.01.2006 15:04 UTC")),
	})
	if err == nil {
		return nil
	}
	var apiErr *botapi.APIError
	if errors.As(err, &apiErr) {
		n.log.Warn("reminder rejected by platform", slog.String("op", op),
			slog.String("identity_id", r.IdentityID), sl.Err(err))
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (n *Notifier) send(ctx context.Context, op string, req botapi.SendMessageRequest) {
	if err := n.api.SendMessage(ctx, req); err != nil {
		n.log.Error("failed to send message", slog.String("op", op),
			slog.Int64("chat_id", req.ChatID), sl.Err(err))
	}
}

func intervalName(i models.BillingInterval) string {
	switch strings.ToLower(string(i)) {
	case string(models.IntervalYear):
		return "год"
	default:
		return "месяц"
	}
}
