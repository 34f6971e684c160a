// Package scheduler собирает приложение планировщика: закрытие истёкших
// подписок, очистку токенов входа и публикацию напоминаний.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/botgate/internal/services/scheduler"
	"github.com/magabrotheeeer/botgate/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationsExchange, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	schedulerService := schedulerservice.NewSchedulerService(db, rabbitmq.NewPublisher(ch), schedulerservice.Options{
		SweepInterval:    cfg.SweepInterval,
		ReminderInterval: cfg.ReminderInterval,
		ReminderWindow:   cfg.ReminderWindow,
		TokenRetention:   cfg.MagicToken.Retention,
	}, logger)

	return &App{
		schedulerService: schedulerService,
		db:               db,
		conn:             conn,
		ch:               ch,
		logger:           logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает циклы планировщика и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.schedulerService.RunSweeper(ctx)
	}()
	go func() {
		defer wg.Done()
		a.schedulerService.RunReminders(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	a.logger.Info("scheduler shutting down gracefully")

	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	return nil
}
