// Package identity заводит личности при первом обращении к боту.
package identity

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/lib/tokenhash"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// MaxDisplayNameLength максимальная длина имени в символах.
const MaxDisplayNameLength = 64

const fallbackDisplayName = "user"

// Repository хранилище личностей.
type Repository interface {
	// UpsertIdentity создаёт личность со stamp или обновляет имя существующей.
	UpsertIdentity(ctx context.Context, externalID int64, displayName, stamp string) (*models.Identity, error)
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
}

// Service работа с личностями.
type Service struct {
	repo   Repository
	policy *bluemonday.Policy
	log    *slog.Logger
}

// New создаёт Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: bluemonday.StrictPolicy(),
		log:    log,
	}
}

// EnsureIdentity находит личность по id платформы или создаёт новую
// с ролью user и свежим stamp. Заблокированные и удалённые личности
// возвращаются как есть, решение принимает вызывающий.
func (s *Service) EnsureIdentity(ctx context.Context, externalID int64, displayName string) (*models.Identity, error) {
	const op = "identity.EnsureIdentity"
	log := s.log.With(slog.String("op", op))

	stamp, err := tokenhash.Random()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	identity, err := s.repo.UpsertIdentity(ctx, externalID, s.SanitizeDisplayName(displayName), stamp)
	if err != nil {
		log.Error("failed to upsert identity", slog.Int64("external_id", externalID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// Get возвращает личность по id.
func (s *Service) Get(ctx context.Context, id string) (*models.Identity, error) {
	const op = "identity.Get"

	identity, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// SanitizeDisplayName убирает разметку из имени, пришедшего с платформы,
// и обрезает его до MaxDisplayNameLength символов.
func (s *Service) SanitizeDisplayName(name string) string {
	clean := html.UnescapeString(s.policy.Sanitize(name))
	clean = strings.NewReplacer("<", "", ">", "").Replace(clean)
	clean = strings.Join(strings.Fields(clean), " ")
	if utf8.RuneCountInString(clean) > MaxDisplayNameLength {
		clean = string([]rune(clean)[:MaxDisplayNameLength])
	}
	if clean == "" {
		return fallbackDisplayName
	}
	return clean
}
