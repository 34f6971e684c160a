// Package sender собирает приложение, которое доставляет уведомления из брокера в чат бота.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/botgate/internal/botapi"
	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/rabbitmq"
	"github.com/magabrotheeeer/botgate/internal/services/notifier"
	senderservice "github.com/magabrotheeeer/botgate/internal/services/sender"
)

// App приложение отправки уведомлений.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New подключается к брокеру и объявляет очереди уведомлений и событий оплаты.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationsExchange, rabbitmq.GetNotificationQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := rabbitmq.DeclareTopology(ch, rabbitmq.PaymentsExchange, rabbitmq.GetPaymentQueues()); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare payments topology: %w", err)
	}

	api := botapi.NewClient(cfg.BotAPI.BaseURL, cfg.BotAPI.Token, cfg.BotAPI.Timeout, metrics.Nop{})
	ntf := notifier.New(api, cfg.ProviderToken, cfg.SupportWindow, logger)
	senderService := senderservice.NewSenderService(ntf, cfg.BotAPI.Timeout, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителей и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.expiring", a.senderService.SendExpiringReminder, a.logger)
	if err != nil {
		a.logger.Error("failed to start notifications.expiring consumer", sl.Err(err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "payments.settled", a.senderService.LogPaymentSettled, a.logger)
	if err != nil {
		a.logger.Error("failed to start payments.settled consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}

	return nil
}
