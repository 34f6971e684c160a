// Package scheduler периодически закрывает истёкшие подписки, чистит
// старые токены входа и рассылает напоминания об окончании подписок.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// Repository операции хранилища для планировщика.
type Repository interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	FindSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.ExpiringReminder, error)
	DeleteStaleMagicTokens(ctx context.Context, before time.Time) (int64, error)
}

// ReminderPublisher публикация напоминаний в брокер.
type ReminderPublisher interface {
	PublishExpiringReminder(ctx context.Context, reminder models.ExpiringReminder) error
}

// Options интервалы работы.
type Options struct {
	SweepInterval    time.Duration
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	TokenRetention   time.Duration
}

// SchedulerService фоновые задачи по расписанию.
type SchedulerService struct {
	repo      Repository
	publisher ReminderPublisher
	opts      Options
	now       func() time.Time
	log       *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo Repository, publisher ReminderPublisher, opts Options, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// WithClock подменяет источник времени.
func (s *SchedulerService) WithClock(now func() time.Time) *SchedulerService {
	s.now = now
	return s
}

// RunSweeper закрывает истёкшие подписки и чистит токены до отмены ctx.
func (s *SchedulerService) RunSweeper(ctx context.Context) {
	runEvery(ctx, s.opts.SweepInterval, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("sweep failed", sl.Err(err))
		}
	})
}

// RunReminders рассылает напоминания до отмены ctx.
func (s *SchedulerService) RunReminders(ctx context.Context) {
	runEvery(ctx, s.opts.ReminderInterval, func() {
		if _, err := s.Remind(ctx); err != nil {
			s.log.Error("reminders failed", sl.Err(err))
		}
	})
}

func runEvery(ctx context.Context, interval time.Duration, task func()) {
	task()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep переводит в EXPIRED подписки с прошедшим сроком и удаляет
// токены входа старше срока хранения. Возвращает число закрытых подписок.
func (s *SchedulerService) Sweep(ctx context.Context) (int64, error) {
	const op = "scheduler.Sweep"
	log := s.log.With(slog.String("op", op))

	now := s.now().UTC()
	expired, err := s.repo.ExpireSubscriptions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if expired > 0 {
		log.Info("subscriptions expired", slog.Int64("count", expired))
	}

	if s.opts.TokenRetention > 0 {
		deleted, err := s.repo.DeleteStaleMagicTokens(ctx, now.Add(-s.opts.TokenRetention))
		if err != nil {
			return expired, fmt.Errorf("%s: %w", op, err)
		}
		if deleted > 0 {
			log.Info("stale magic tokens deleted", slog.Int64("count", deleted))
		}
	}
	return expired, nil
}

// Remind публикует напоминания для подписок, срок которых попадает
// в окно (now+window-interval, now+window]. При регулярном запуске
// каждая подписка получает одно напоминание.
func (s *SchedulerService) Remind(ctx context.Context) (int, error) {
	const op = "scheduler.Remind"
	log := s.log.With(slog.String("op", op))

	now := s.now().UTC()
	to := now.Add(s.opts.ReminderWindow)
	from := to.Add(-s.opts.ReminderInterval)
	if from.Before(now) {
		from = now
	}

	reminders, err := s.repo.FindSubscriptionsExpiringBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(reminders) == 0 {
		log.Info("no expiring subscriptions found")
		return 0, nil
	}
	log.Info("found expiring subscriptions", slog.Int("count", len(reminders)))

	sent := 0
	for _, r := range reminders {
		if err := s.publisher.PublishExpiringReminder(ctx, *r); err != nil {
			log.Error("failed to publish message", slog.String("identity_id", r.IdentityID), sl.Err(err))
			continue
		}
		sent++
	}
	return sent, nil
}
