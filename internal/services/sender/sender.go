// Package sender обрабатывает сообщения брокера и доставляет их пользователям через бота.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// ErrInvalidMessage сообщение брокера не удалось разобрать.
var ErrInvalidMessage = errors.New("invalid message")

// Notifier доставка напоминаний в чат пользователя.
type Notifier interface {
	ExpiringReminder(ctx context.Context, r models.ExpiringReminder) error
}

// SenderService обработчики очередей уведомлений.
type SenderService struct {
	notifier Notifier
	timeout  time.Duration
	log      *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
// timeout ограничивает обработку одного сообщения.
func NewSenderService(notifier Notifier, timeout time.Duration, log *slog.Logger) *SenderService {
	return &SenderService{
		notifier: notifier,
		timeout:  timeout,
		log:      log,
	}
}

// SendExpiringReminder отправляет напоминание об окончании подписки.
// Ошибка означает, что сообщение нужно вернуть в очередь.
func (s *SenderService) SendExpiringReminder(body []byte) error {
	const op = "sender.SendExpiringReminder"
	log := s.log.With(slog.String("op", op))

	var reminder models.ExpiringReminder
	if err := json.Unmarshal(body, &reminder); err != nil {
		log.Error("failed to unmarshal message body", sl.Err(err))
		return nil
	}
	if reminder.ExternalID == 0 {
		log.Warn("reminder without chat", slog.String("identity_id", reminder.IdentityID))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.notifier.ExpiringReminder(ctx, reminder); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("reminder delivered",
		slog.String("identity_id", reminder.IdentityID),
		slog.String("service_id", reminder.ServiceID))
	return nil
}

// LogPaymentSettled пишет событие оплаты в журнал аудита.
func (s *SenderService) LogPaymentSettled(body []byte) error {
	const op = "sender.LogPaymentSettled"
	log := s.log.With(slog.String("op", op))

	var event models.PaymentSettledEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal message body", sl.Err(err))
		return nil
	}
	if event.PaymentID == "" {
		log.Error("settled event without payment id", sl.Err(ErrInvalidMessage))
		return nil
	}
	log.Info("payment settled",
		slog.String("payment_id", event.PaymentID),
		slog.String("identity_id", event.IdentityID),
		slog.String("tenant_id", event.TenantID),
		slog.String("service_id", event.ServiceID),
		slog.Int64("amount", event.Amount),
		slog.String("currency", event.Currency),
		slog.Time("expires_at", event.ExpiresAt),
		slog.Int("renewals", event.Renewals))
	return nil
}
