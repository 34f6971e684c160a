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

// SettlePayment применяет успешную оплату в одной транзакции:
// условный перевод PENDING -> SUCCESS, чтение периода тарифа и upsert подписки.
//
// Ноль затронутых строк означает повторную доставку (storage.ErrSettlementConflict)
// либо несовпадение суммы (storage.ErrPaymentMismatch, запись переводится в FAILED).
// В обоих случаях результат возвращается вместе с ошибкой.
func (s *Storage) SettlePayment(ctx context.Context, st models.Settlement) (*models.SettlementResult, error) {
	const op = "storage.SettlePayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	now := s.now().UTC()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res := &models.SettlementResult{PaymentID: st.PaymentID}
	err = tx.QueryRowContext(ctx,
		`UPDATE payments SET status = 'SUCCESS', gateway_ref = NULLIF($2, ''), settled_at = $3
		 WHERE id = $1 AND status = 'PENDING' AND amount = $4 AND currency = $5
		 RETURNING identity_id, tier_id, tenant_id`,
		st.PaymentID, st.GatewayRef, now, st.Amount, st.Currency).Scan(&res.IdentityID, &res.TierID, &res.TenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return resolveUnsettled(ctx, tx, st, now, res)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: mark success: %w", op, err)
	}

	var interval sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT service_id, billing_interval FROM tiers WHERE id = $1`, res.TierID).Scan(&res.ServiceID, &interval)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTierNotFound)
		}
		return nil, fmt.Errorf("%s: load tier: %w", op, err)
	}
	res.ExpiresAt = models.BillingInterval(interval.String).ExtendFrom(now)

	err = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (identity_id, service_id, tier_id, status, expires_at, renewals, created_at, updated_at)
		 VALUES ($1, $2, $3, 'ACTIVE', $4, 1, $5, $5)
		 ON CONFLICT (identity_id, service_id) DO UPDATE
		 SET status = 'ACTIVE',
		     expires_at = EXCLUDED.expires_at,
		     renewals = subscriptions.renewals + 1,
		     tier_id = EXCLUDED.tier_id,
		     updated_at = EXCLUDED.updated_at
		 RETURNING renewals`,
		res.IdentityID, res.ServiceID, res.TierID, res.ExpiresAt, now).Scan(&res.Renewals)
	if err != nil {
		return nil, fmt.Errorf("%s: upsert subscription: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	res.FinalStatus = models.PaymentSuccess
	res.SettledAt = now
	return res, nil
}

func resolveUnsettled(ctx context.Context, tx *sql.Tx, st models.Settlement, now time.Time,
	res *models.SettlementResult) (*models.SettlementResult, error) {
	const op = "storage.SettlePayment"

	var status models.PaymentStatus
	err := tx.QueryRowContext(ctx,
		`SELECT p.status, p.identity_id, p.tier_id, t.service_id
		 FROM payments p JOIN tiers t ON t.id = p.tier_id
		 WHERE p.id = $1 FOR UPDATE OF p`, st.PaymentID).Scan(&status, &res.IdentityID, &res.TierID, &res.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: load payment: %w", op, err)
	}

	res.FinalStatus = status
	if status.Terminal() {
		res.AlreadyFinal = true
		return res, fmt.Errorf("%s: %w", op, storage.ErrSettlementConflict)
	}

	// PENDING, но сумма или валюта не совпали
	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = 'FAILED', gateway_ref = NULLIF($2, ''), settled_at = $3
		 WHERE id = $1 AND status = 'PENDING'`, st.PaymentID, st.GatewayRef, now)
	if err != nil {
		return nil, fmt.Errorf("%s: mark failed: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	res.FinalStatus = models.PaymentFailed
	return res, fmt.Errorf("%s: %w", op, storage.ErrPaymentMismatch)
}
