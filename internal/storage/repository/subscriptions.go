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

const subscriptionColumns = `id, identity_id, service_id, tier_id, status, expires_at, renewals, created_at, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(&sub.ID, &sub.IdentityID, &sub.ServiceID, &sub.TierID, &sub.Status,
		&sub.ExpiresAt, &sub.Renewals, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscription возвращает подписку по (identity, service).
func (s *Storage) GetSubscription(ctx context.Context, identityID, serviceID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE identity_id = $1 AND service_id = $2`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, identityID, serviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ListSubscriptions возвращает все подписки личности.
func (s *Storage) ListSubscriptions(ctx context.Context, identityID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE identity_id = $1 ORDER BY service_id`
	rows, err := s.DB.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ExpireSubscriptions переводит просроченные ACTIVE подписки в EXPIRED.
func (s *Storage) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.ExpireSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1
		 WHERE status = 'ACTIVE' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// FindSubscriptionsExpiringBetween возвращает активные подписки, истекающие в (from, to].
func (s *Storage) FindSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.ExpiringReminder, error) {
	const op = "storage.FindSubscriptionsExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT s.identity_id, i.external_id, s.service_id, t.name, s.expires_at
			  FROM subscriptions s
			  JOIN identities i ON i.id = s.identity_id
			  JOIN tiers t ON t.id = s.tier_id
			  WHERE s.status = 'ACTIVE' AND i.status = 'active'
			    AND s.expires_at > $1 AND s.expires_at <= $2`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringReminder
	for rows.Next() {
		var r models.ExpiringReminder
		if err := rows.Scan(&r.IdentityID, &r.ExternalID, &r.ServiceID, &r.TierName, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
