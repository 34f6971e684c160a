package models

import "time"

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription доступ личности к сервису. Уникальна по (IdentityID, ServiceID).
type Subscription struct {
	ID         string             `json:"id"`
	IdentityID string             `json:"identity_id"`
	ServiceID  string             `json:"service_id"`
	TierID     string             `json:"tier_id"`
	Status     SubscriptionStatus `json:"status"`
	ExpiresAt  time.Time          `json:"expires_at"`
	Renewals   int                `json:"renewals"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// ExpiringReminder сообщение планировщика о скором окончании подписки.
type ExpiringReminder struct {
	IdentityID string    `json:"identity_id"`
	ExternalID int64     `json:"external_id"`
	ServiceID  string    `json:"service_id"`
	TierName   string    `json:"tier_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}
