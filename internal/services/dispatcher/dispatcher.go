// Package dispatcher классифицирует входящие обновления платформы
// и обрабатывает их в фоне после подтверждения приёма.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/payment"
)

// Kind тип обновления.
type Kind string

// Типы обновлений. Каждое обновление относится ровно к одному.
const (
	KindPreCheckout    Kind = "pre_checkout"
	KindPaymentSuccess Kind = "payment_success"
	KindCommand        Kind = "command"
	KindCallback       Kind = "callback"
	KindUnknown        Kind = "unknown"
	KindInvalid        Kind = "invalid"
)

// ErrShuttingDown диспетчер больше не принимает обновления.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Payments обработка платёжных обновлений.
type Payments interface {
	PreCheckout(ctx context.Context, req payment.PreCheckoutRequest) (bool, string)
	Settle(ctx context.Context, st models.Settlement) error
	// SettlementDelayed сообщает пользователю, что оплата не была применена.
	SettlementDelayed(ctx context.Context, chatID int64)
}

// Commands обработка команд и кнопок.
type Commands interface {
	HandleCommand(ctx context.Context, msg *botapi.Message) error
	HandleCallback(ctx context.Context, q *botapi.CallbackQuery) error
}

// Options настройки фоновой обработки.
//
// QueueTimeout ограничивает ожидание свободного слота. ProcessingTimeout
// отсчитывается только после того, как слот получен.
type Options struct {
	MaxInFlight       int
	ProcessingTimeout time.Duration
	QueueTimeout      time.Duration
}

// Dispatcher фоновая обработка обновлений с ограничением параллелизма.
type Dispatcher struct {
	decoder  *Decoder
	payments Payments
	commands Commands
	opts     Options
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	metrics  metrics.Recorder
	tracer   trace.Tracer
	log      *slog.Logger
}

// New создаёт Dispatcher.
func New(payments Payments, commands Commands, opts Options, rec metrics.Recorder, log *slog.Logger) (*Dispatcher, error) {
	const op = "dispatcher.New"

	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 30 * time.Second
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = time.Minute
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{
		decoder:  decoder,
		payments: payments,
		commands: commands,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxInFlight),
		metrics:  rec,
		tracer:   otel.Tracer("github.com/magabrotheeeer/botgate/internal/services/dispatcher"),
		log:      log,
	}, nil
}

// Classify определяет тип обновления.
func Classify(u *botapi.Update) Kind {
	switch {
	case u == nil:
		return KindUnknown
	case u.PreCheckoutQuery != nil:
		return KindPreCheckout
	case u.Message != nil && u.Message.SuccessfulPayment != nil:
		return KindPaymentSuccess
	case u.CallbackQuery != nil:
		return KindCallback
	case u.Message != nil && strings.HasPrefix(strings.TrimSpace(u.Message.Text), "/"):
		return KindCommand
	default:
		return KindUnknown
	}
}

// Submit ставит тело обновления в фоновую обработку и сразу возвращается.
// Контекст запроса не передаётся: обработка живёт дольше ответа платформе.
func (d *Dispatcher) Submit(ctx context.Context, body []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrShuttingDown
	}

	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), body)
	return nil
}

func (d *Dispatcher) run(parent context.Context, body []byte) {
	const op = "dispatcher.run"
	defer d.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while processing update", slog.String("op", op), sl.Panic(r))
		}
	}()

	wait := time.NewTimer(d.opts.QueueTimeout)
	select {
	case d.sem <- struct{}{}:
		wait.Stop()
		defer func() { <-d.sem }()
	case <-wait.C:
		d.drop(parent, body)
		return
	}

	ctx, cancel := context.WithTimeout(parent, d.opts.ProcessingTimeout)
	defer cancel()

	if err := d.Process(ctx, body); err != nil {
		d.log.Error("failed to process update", slog.String("op", op), sl.Err(err))
	}
}

// drop обрабатывает обновление, не дождавшееся слота. По оплате пользователь
// получает сообщение об отложенной синхронизации.
func (d *Dispatcher) drop(parent context.Context, body []byte) {
	const op = "dispatcher.drop"

	update, err := d.decoder.Decode(body)
	if err != nil {
		d.log.Error("update dropped while waiting for a slot", slog.String("op", op), sl.Err(err))
		return
	}
	kind := Classify(update)
	d.metrics.WebhookUpdate("dropped")
	d.log.Error("update dropped while waiting for a slot",
		slog.String("op", op),
		slog.Int64("update_id", update.UpdateID),
		slog.String("kind", string(kind)),
		slog.Duration("queue_timeout", d.opts.QueueTimeout))

	if kind != KindPaymentSuccess {
		return
	}
	ctx, cancel := context.WithTimeout(parent, d.opts.ProcessingTimeout)
	defer cancel()
	d.payments.SettlementDelayed(ctx, update.Message.Chat.ID)
}

// Process разбирает и обрабатывает одно обновление синхронно.
func (d *Dispatcher) Process(ctx context.Context, body []byte) error {
	const op = "dispatcher.Process"

	update, err := d.decoder.Decode(body)
	if err != nil {
		d.metrics.WebhookUpdate(string(KindInvalid))
		return fmt.Errorf("%s: %w", op, err)
	}

	kind := Classify(update)
	d.metrics.WebhookUpdate(string(kind))

	ctx, span := d.tracer.Start(ctx, "dispatcher.Process", trace.WithAttributes(
		attribute.Int64("update.id", update.UpdateID),
		attribute.String("update.kind", string(kind)),
	))
	defer span.End()

	log := d.log.With(slog.String("op", op), slog.Int64("update_id", update.UpdateID), slog.String("kind", string(kind)))
	log.Debug("update classified")

	switch kind {
	case KindPreCheckout:
		q := update.PreCheckoutQuery
		d.payments.PreCheckout(ctx, payment.PreCheckoutRequest{
			QueryID:   q.ID,
			PaymentID: q.InvoicePayload,
			Amount:    q.TotalAmount,
			Currency:  q.Currency,
		})
		return nil
	case KindPaymentSuccess:
		sp := update.Message.SuccessfulPayment
		err = d.payments.Settle(ctx, models.Settlement{
			PaymentID:  sp.InvoicePayload,
			Amount:     sp.TotalAmount,
			Currency:   sp.Currency,
			GatewayRef: gatewayRef(sp),
			ChatID:     update.Message.Chat.ID,
		})
	case KindCommand:
		err = d.commands.HandleCommand(ctx, update.Message)
	case KindCallback:
		err = d.commands.HandleCallback(ctx, update.CallbackQuery)
	default:
		log.Debug("update dropped")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Shutdown запрещает новые обновления и ждёт завершения начатых.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	const op = "dispatcher.Shutdown"

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func gatewayRef(sp *botapi.SuccessfulPayment) string {
	if sp.TelegramPaymentChargeID != "" {
		return sp.TelegramPaymentChargeID
	}
	return sp.ProviderPaymentChargeID
}
