// Package catalog отдаёт тарифы и подписки для бота и HTTP API.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// Repository чтение тарифов и подписок.
type Repository interface {
	GetTier(ctx context.Context, tierID string) (*models.Tier, error)
	GetSubscription(ctx context.Context, identityID, serviceID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, identityID string) ([]*models.Subscription, error)
}

// Cache кэш тарифов. Может отсутствовать.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service чтение каталога с кэшированием тарифов.
type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// New создаёт Service. cache может быть nil.
func New(repo Repository, cache Cache, cacheTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

func tierKey(tierID string) string {
	return "tier:" + tierID
}

// GetTier возвращает тариф. Ошибки кэша не мешают чтению из базы.
func (s *Service) GetTier(ctx context.Context, tierID string) (*models.Tier, error) {
	const op = "catalog.GetTier"
	log := s.log.With(slog.String("op", op), slog.String("tier_id", tierID))

	if s.cache != nil {
		var cached models.Tier
		found, err := s.cache.Get(ctx, tierKey(tierID), &cached)
		if err != nil {
			log.Warn("failed to read tier from cache", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	tier, err := s.repo.GetTier(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tierKey(tierID), tier, s.cacheTTL); err != nil {
			log.Warn("failed to add tier to cache", sl.Err(err))
		}
	}
	return tier, nil
}

// GetSubscription возвращает подписку личности на сервис.
func (s *Service) GetSubscription(ctx context.Context, identityID, serviceID string) (*models.Subscription, error) {
	const op = "catalog.GetSubscription"

	sub, err := s.repo.GetSubscription(ctx, identityID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ListSubscriptions возвращает все подписки личности.
func (s *Service) ListSubscriptions(ctx context.Context, identityID string) ([]*models.Subscription, error) {
	const op = "catalog.ListSubscriptions"

	subs, err := s.repo.ListSubscriptions(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}
