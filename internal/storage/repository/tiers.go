package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// GetTier возвращает тариф с периодом оплаты и ценой.
func (s *Storage) GetTier(ctx context.Context, tierID string) (*models.Tier, error) {
	const op = "storage.GetTier"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, tenant_id, service_id, name, price, currency, billing_interval, purchasable, deleted_at
			  FROM tiers WHERE id = $1`
	var (
		t        models.Tier
		interval sql.NullString
		deleted  sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, query, tierID).Scan(&t.ID, &t.TenantID, &t.ServiceID, &t.Name,
		&t.Price, &t.Currency, &interval, &t.Purchasable, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTierNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if interval.Valid {
		t.Interval = models.BillingInterval(interval.String)
	}
	if deleted.Valid {
		t.DeletedAt = &deleted.Time
	}
	return &t, nil
}
