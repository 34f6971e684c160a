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

// CreatePendingPayment создаёт запись PENDING при выставлении счёта.
func (s *Storage) CreatePendingPayment(ctx context.Context, identityID string, tier *models.Tier) (*models.PaymentRecord, error) {
	const op = "storage.CreatePendingPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rec := &models.PaymentRecord{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		TenantID:   tier.TenantID,
		TierID:     tier.ID,
		Amount:     tier.Price,
		Currency:   tier.Currency,
		Status:     models.PaymentPending,
		CreatedAt:  s.now().UTC(),
	}
	query := `INSERT INTO payments (id, identity_id, tenant_id, tier_id, amount, currency, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7)`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID, rec.IdentityID, rec.TenantID, rec.TierID, rec.Amount, rec.Currency, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// GetPayment возвращает запись платежа по id.
func (s *Storage) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, identity_id, tenant_id, tier_id, amount, currency, status, gateway_ref, created_at, settled_at
			  FROM payments WHERE id = $1`
	var (
		p          models.PaymentRecord
		gatewayRef sql.NullString
		settledAt  sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, query, paymentID).Scan(&p.ID, &p.IdentityID, &p.TenantID, &p.TierID,
		&p.Amount, &p.Currency, &p.Status, &gatewayRef, &p.CreatedAt, &settledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if gatewayRef.Valid {
		p.GatewayRef = &gatewayRef.String
	}
	if settledAt.Valid {
		p.SettledAt = &settledAt.Time
	}
	return &p, nil
}
