// Package payment сверяет уведомления об оплате с журналом платежей
// и переводит их в состояние подписок.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Причины отказа на этапе pre-checkout. Показываются пользователю.
const (
	RejectPaymentNotFound = "Счёт не найден"
	RejectPaymentClosed   = "Счёт уже оплачен или закрыт"
	RejectTierUnavailable = "Тариф больше недоступен"
	RejectAmountMismatch  = "Сумма или валюта не совпадают со счётом"
	RejectTemporary       = "Временная ошибка, попробуйте позже"
)

// Ledger журнал платежей и подписок.
type Ledger interface {
	CreatePendingPayment(ctx context.Context, identityID string, tier *models.Tier) (*models.PaymentRecord, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	// SettlePayment применяет оплату в одной транзакции.
	SettlePayment(ctx context.Context, st models.Settlement) (*models.SettlementResult, error)
	GetSubscription(ctx context.Context, identityID, serviceID string) (*models.Subscription, error)
	// GetTier читает тариф мимо кэша.
	GetTier(ctx context.Context, tierID string) (*models.Tier, error)
}

// TierReader чтение тарифов.
type TierReader interface {
	GetTier(ctx context.Context, tierID string) (*models.Tier, error)
}

// Notifier сообщения пользователю по ходу оплаты.
type Notifier interface {
	AnswerPreCheckout(ctx context.Context, queryID string, ok bool, reason string)
	Invoice(ctx context.Context, chatID int64, payment *models.PaymentRecord, tier *models.Tier) error
	PaymentConfirmed(ctx context.Context, chatID int64, expiresAt time.Time)
	PaymentDelayed(ctx context.Context, chatID int64)
	PaymentRejected(ctx context.Context, chatID int64)
}

// EventPublisher публикация событий об оплате. Может отсутствовать.
type EventPublisher interface {
	PublishPaymentSettled(ctx context.Context, event models.PaymentSettledEvent) error
}

// PreCheckoutRequest запрос подтверждения перед списанием.
type PreCheckoutRequest struct {
	QueryID   string
	PaymentID string
	Amount    int64
	Currency  string
}

// Engine движок сверки платежей.
type Engine struct {
	ledger    Ledger
	tiers     TierReader
	notifier  Notifier
	publisher EventPublisher
	metrics   metrics.Recorder
	tracer    trace.Tracer
	log       *slog.Logger
}

// New создаёт Engine. publisher может быть nil.
func New(ledger Ledger, tiers TierReader, notifier Notifier, publisher EventPublisher,
	rec metrics.Recorder, log *slog.Logger) *Engine {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Engine{
		ledger:    ledger,
		tiers:     tiers,
		notifier:  notifier,
		publisher: publisher,
		metrics:   rec,
		tracer:    otel.Tracer("github.com/magabrotheeeer/botgate/internal/services/payment"),
		log:       log,
	}
}

// Checkout создаёт запись PENDING и отправляет счёт.
func (e *Engine) Checkout(ctx context.Context, identityID, tierID string, chatID int64) (*models.PaymentRecord, error) {
	const op = "payment.Checkout"
	log := e.log.With(slog.String("op", op), slog.String("tier_id", tierID))

	tier, err := e.tiers.GetTier(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !tier.Available() {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrTierNotFound)
	}

	record, err := e.ledger.CreatePendingPayment(ctx, identityID, tier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("pending payment created", slog.String("payment_id", record.ID))

	if err := e.notifier.Invoice(ctx, chatID, record, tier); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

// PreCheckout проверяет тариф и запись PENDING и отвечает платформе.
// Состояние не меняется.
func (e *Engine) PreCheckout(ctx context.Context, req PreCheckoutRequest) (bool, string) {
	const op = "payment.PreCheckout"
	log := e.log.With(slog.String("op", op), slog.String("payment_id", req.PaymentID))

	ok, reason := e.checkPreCheckout(ctx, req)
	if !ok {
		log.Info("pre-checkout rejected", slog.String("reason", reason))
	}
	e.notifier.AnswerPreCheckout(ctx, req.QueryID, ok, reason)
	return ok, reason
}

func (e *Engine) checkPreCheckout(ctx context.Context, req PreCheckoutRequest) (bool, string) {
	const op = "payment.checkPreCheckout"

	record, err := e.ledger.GetPayment(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			return false, RejectPaymentNotFound
		}
		e.log.Error("failed to load payment", slog.String("op", op), sl.Err(err))
		return false, RejectTemporary
	}
	if record.Status != models.PaymentPending {
		return false, RejectPaymentClosed
	}

	tier, err := e.ledger.GetTier(ctx, record.TierID)
	if err != nil {
		if errors.Is(err, storage.ErrTierNotFound) {
			return false, RejectTierUnavailable
		}
		e.log.Error("failed to load tier", slog.String("op", op), sl.Err(err))
		return false, RejectTemporary
	}
	if !tier.Available() {
		return false, RejectTierUnavailable
	}
	if record.Amount != req.Amount || record.Currency != req.Currency {
		return false, RejectAmountMismatch
	}
	return true, ""
}

// Settle применяет успешную оплату и сообщает пользователю результат.
//
// Повторная доставка уже применённой оплаты не считается ошибкой:
// пользователь снова получает подтверждение. При сбое транзакции
// пользователь получает сообщение об отложенной синхронизации.
func (e *Engine) Settle(ctx context.Context, st models.Settlement) error {
	const op = "payment.Settle"
	log := e.log.With(slog.String("op", op), slog.String("payment_id", st.PaymentID))

	ctx, span := e.tracer.Start(ctx, "payment.Settle", trace.WithAttributes(
		attribute.String("payment.id", st.PaymentID),
		attribute.String("payment.currency", st.Currency),
		attribute.Int64("payment.amount", st.Amount),
	))
	defer span.End()

	res, err := e.ledger.SettlePayment(ctx, st)
	switch {
	case err == nil:
		e.metrics.Settlement("settled")
		span.SetAttributes(attribute.Int("subscription.renewals", res.Renewals))
		log.Info("payment settled",
			slog.String("identity_id", res.IdentityID),
			slog.String("service_id", res.ServiceID),
			slog.Int("renewals", res.Renewals))
		e.publish(ctx, st, res)
		e.notifier.PaymentConfirmed(ctx, st.ChatID, res.ExpiresAt)
		return nil

	case errors.Is(err, storage.ErrSettlementConflict):
		e.metrics.Settlement("duplicate")
		span.SetAttributes(attribute.Bool("payment.duplicate", true))
		log.Info("duplicate settlement ignored")
		e.confirmDuplicate(ctx, st.ChatID, res)
		return nil

	case errors.Is(err, storage.ErrPaymentMismatch):
		e.metrics.Settlement("mismatch")
		span.SetStatus(codes.Error, "amount mismatch")
		log.Warn("payment does not match ledger record", sl.Err(err))
		e.notifier.PaymentRejected(ctx, st.ChatID)
		return fmt.Errorf("%s: %w", op, err)

	default:
		e.metrics.Settlement("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		log.Error("settlement rolled back", sl.Err(err))
		e.notifier.PaymentDelayed(ctx, st.ChatID)
		return fmt.Errorf("%s: %w", op, err)
	}
}

// SettlementDelayed сообщает об оплате, которая не дошла до применения.
func (e *Engine) SettlementDelayed(ctx context.Context, chatID int64) {
	e.metrics.Settlement("dropped")
	e.notifier.PaymentDelayed(ctx, chatID)
}

func (e *Engine) confirmDuplicate(ctx context.Context, chatID int64, res *models.SettlementResult) {
	const op = "payment.confirmDuplicate"

	if res == nil || res.FinalStatus != models.PaymentSuccess {
		e.notifier.PaymentRejected(ctx, chatID)
		return
	}
	sub, err := e.ledger.GetSubscription(ctx, res.IdentityID, res.ServiceID)
	if err != nil {
		e.log.Error("failed to load subscription", slog.String("op", op), sl.Err(err))
		e.notifier.PaymentDelayed(ctx, chatID)
		return
	}
	e.notifier.PaymentConfirmed(ctx, chatID, sub.ExpiresAt)
}

func (e *Engine) publish(ctx context.Context, st models.Settlement, res *models.SettlementResult) {
	const op = "payment.publish"
	if e.publisher == nil {
		return
	}
	event := models.PaymentSettledEvent{
		PaymentID:  res.PaymentID,
		IdentityID: res.IdentityID,
		TenantID:   res.TenantID,
		ServiceID:  res.ServiceID,
		TierID:     res.TierID,
		Amount:     st.Amount,
		Currency:   st.Currency,
		ExpiresAt:  res.ExpiresAt,
		Renewals:   res.Renewals,
		SettledAt:  res.SettledAt,
	}
	if err := e.publisher.PublishPaymentSettled(ctx, event); err != nil {
		e.log.Warn("failed to publish payment event", slog.String("op", op),
			slog.String("payment_id", res.PaymentID), sl.Err(err))
	}
}
