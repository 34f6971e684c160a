package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// SaveMagicToken сохраняет дайджест нового токена входа.
func (s *Storage) SaveMagicToken(ctx context.Context, token models.MagicToken) error {
	const op = "storage.SaveMagicToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO magic_tokens (digest, identity_id, issued_at, expires_at, used)
			  VALUES ($1, $2, $3, $4, false)`
	_, err := s.DB.ExecContext(ctx, query, token.Digest, token.IdentityID, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConsumeMagicToken гасит токен одним условным UPDATE.
// Из двух конкурентных вызовов успешен ровно один.
// Причину отказа определяет повторное чтение строки.
func (s *Storage) ConsumeMagicToken(ctx context.Context, digest string, now time.Time) (string, error) {
	const op = "storage.ConsumeMagicToken"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var identityID string
	err := s.DB.QueryRowContext(ctx,
		`UPDATE magic_tokens SET used = true, used_at = $2
		 WHERE digest = $1 AND used = false AND expires_at > $2
		 RETURNING identity_id`, digest, now).Scan(&identityID)
	if err == nil {
		return identityID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var used bool
	err = s.DB.QueryRowContext(ctx,
		`SELECT used FROM magic_tokens WHERE digest = $1`, digest).Scan(&used)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, err)
	case used:
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenAlreadyUsed)
	default:
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenExpired)
	}
}

// DeleteStaleMagicTokens удаляет токены, истёкшие раньше before.
func (s *Storage) DeleteStaleMagicTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.DeleteStaleMagicTokens"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM magic_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
