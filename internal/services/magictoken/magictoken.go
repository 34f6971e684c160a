// Package magictoken выпускает и погашает одноразовые токены входа,
// которыми платформа сообщений подтверждает пользователя.
package magictoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/botgate/internal/lib/tokenhash"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Границы срока жизни токена.
const (
	MinTTL = 5 * time.Minute
	MaxTTL = 10 * time.Minute
)

// Ошибки погашения. Совпадают с ошибками хранилища, чтобы вызывающий
// код не импортировал storage.
var (
	ErrTokenNotFound    = storage.ErrTokenNotFound
	ErrTokenExpired     = storage.ErrTokenExpired
	ErrTokenAlreadyUsed = storage.ErrTokenAlreadyUsed
	// ErrIdentityDenied личность заблокирована или удалена.
	ErrIdentityDenied = errors.New("identity denied")
)

// TokenStore хранилище токенов. Реализуется PostgreSQL и Redis.
type TokenStore interface {
	SaveMagicToken(ctx context.Context, token models.MagicToken) error
	// ConsumeMagicToken атомарно помечает токен использованным и возвращает id личности.
	ConsumeMagicToken(ctx context.Context, digest string, now time.Time) (string, error)
}

// IdentityReader загрузка личности по id.
type IdentityReader interface {
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
}

// Service выпускает и погашает токены входа.
type Service struct {
	store      TokenStore
	identities IdentityReader
	hasher     *tokenhash.Hasher
	ttl        time.Duration
	now        func() time.Time
	metrics    metrics.Recorder
}

// New создаёт Service. ttl приводится к диапазону [MinTTL, MaxTTL].
func New(store TokenStore, identities IdentityReader, hasher *tokenhash.Hasher, ttl time.Duration, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		store:      store,
		identities: identities,
		hasher:     hasher,
		ttl:        ClampTTL(ttl),
		now:        time.Now,
		metrics:    rec,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TTL возвращает действующий срок жизни токена.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// ClampTTL приводит срок жизни к допустимому диапазону.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	default:
		return ttl
	}
}

// Issue создаёт токен для личности. В хранилище попадает только дайджест,
// открытое значение возвращается вызывающему один раз.
func (s *Service) Issue(ctx context.Context, identityID string) (string, error) {
	const op = "magictoken.Issue"

	raw, err := tokenhash.Random()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	now := s.now().UTC()
	token := models.MagicToken{
		Digest:     s.hasher.Digest(raw),
		IdentityID: identityID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
		Used:       false,
	}
	if err := s.store.SaveMagicToken(ctx, token); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

// Redeem погашает токен и возвращает личность.
// Из двух одновременных погашений успешно ровно одно.
func (s *Service) Redeem(ctx context.Context, raw string) (*models.Identity, error) {
	const op = "magictoken.Redeem"

	if raw == "" {
		s.metrics.Redemption("not_found")
		return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	identityID, err := s.store.ConsumeMagicToken(ctx, s.hasher.Digest(raw), s.now().UTC())
	if err != nil {
		s.metrics.Redemption(redemptionOutcome(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity, err := s.identities.GetIdentity(ctx, identityID)
	if err != nil {
		s.metrics.Redemption("error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !identity.Active() {
		s.metrics.Redemption("identity_denied")
		return nil, fmt.Errorf("%s: %w", op, ErrIdentityDenied)
	}

	s.metrics.Redemption("ok")
	return identity, nil
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}
