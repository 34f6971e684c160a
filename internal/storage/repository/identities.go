package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

const identityColumns = `id, external_id, display_name, role, tenant_id, security_stamp, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		i        models.Identity
		tenantID sql.NullString
	)
	err := row.Scan(&i.ID, &i.ExternalID, &i.DisplayName, &i.Role, &tenantID,
		&i.SecurityStamp, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tenantID.Valid {
		i.TenantID = &tenantID.String
	}
	return &i, nil
}

// GetIdentity возвращает личность по id.
func (s *Storage) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	const op = "storage.GetIdentity"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	identity, err := scanIdentity(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrIdentityNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// GetIdentityByExternalID возвращает личность по id пользователя платформы.
func (s *Storage) GetIdentityByExternalID(ctx context.Context, externalID int64) (*models.Identity, error) {
	const op = "storage.GetIdentityByExternalID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + identityColumns + ` FROM identities WHERE external_id = $1`
	identity, err := scanIdentity(s.DB.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrIdentityNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// UpsertIdentity создаёт личность при первом обращении или обновляет отображаемое имя.
// Stamp записывается только при создании.
func (s *Storage) UpsertIdentity(ctx context.Context, externalID int64, displayName, stamp string) (*models.Identity, error) {
	const op = "storage.UpsertIdentity"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO identities (id, external_id, display_name, role, security_stamp, status, created_at, updated_at)
			  VALUES ($1, $2, $3, 'user', $4, 'active', $5, $5)
			  ON CONFLICT (external_id) DO UPDATE
			  SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at
			  RETURNING ` + identityColumns
	identity, err := scanIdentity(s.DB.QueryRowContext(ctx, query,
		uuid.NewString(), externalID, displayName, stamp, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// SecurityStamp возвращает текущий stamp и статус личности.
func (s *Storage) SecurityStamp(ctx context.Context, identityID string) (string, models.IdentityStatus, error) {
	const op = "storage.SecurityStamp"
	select {
	case <-ctx.Done():
		return "", "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var (
		stamp  string
		status models.IdentityStatus
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT security_stamp, status FROM identities WHERE id = $1`, identityID).Scan(&stamp, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("%s: %w", op, storage.ErrIdentityNotFound)
		}
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return stamp, status, nil
}

// SetSecurityStamp заменяет stamp личности одной строкой.
func (s *Storage) SetSecurityStamp(ctx context.Context, identityID, stamp string) error {
	const op = "storage.SetSecurityStamp"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE identities SET security_stamp = $2, updated_at = $3 WHERE id = $1`,
		identityID, stamp, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrIdentityNotFound)
	}
	return nil
}
