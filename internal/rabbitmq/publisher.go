package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/botgate/internal/models"
)

// Channel часть amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в формате JSON.
func PublishMessage(ch Channel, exchange string, routingKey string, message any) error {
	return publish(ch, exchange, routingKey, "", message)
}

func publish(ch Channel, exchange, routingKey, msgType string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         msgType,
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует доменные события. Канал amqp не рассчитан
// на параллельную публикацию, поэтому вызовы сериализуются.
type Publisher struct {
	mu sync.Mutex
	ch Channel
}

// NewPublisher создаёт Publisher поверх канала.
func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishPaymentSettled публикует событие payment.settled.
func (p *Publisher) PublishPaymentSettled(ctx context.Context, event models.PaymentSettledEvent) error {
	return p.publish(ctx, PaymentsExchange, SettledRoutingKey, PaymentSettledType, event)
}

// PublishExpiringReminder публикует напоминание о скором окончании подписки.
func (p *Publisher) PublishExpiringReminder(ctx context.Context, reminder models.ExpiringReminder) error {
	return p.publish(ctx, NotificationsExchange, ExpiringRoutingKey, ExpiringReminderType, reminder)
}

func (p *Publisher) publish(ctx context.Context, exchange, key, msgType string, message any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq.Publish: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return publish(p.ch, exchange, key, msgType, message)
}
