package models

import "time"

// PaymentStatus статус записи в журнале платежей.
// PENDING переходит ровно один раз в SUCCESS или FAILED.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Terminal сообщает, что статус больше не меняется.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// PaymentRecord запись журнала платежей
type PaymentRecord struct {
	ID         string        `json:"id"`
	IdentityID string        `json:"identity_id"`
	TenantID   string        `json:"tenant_id"`
	TierID     string        `json:"tier_id"`
	Amount     int64         `json:"amount"` // в минимальных единицах валюты
	Currency   string        `json:"currency"`
	Status     PaymentStatus `json:"status"`
	GatewayRef *string       `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	SettledAt  *time.Time    `json:"settled_at,omitempty"`
}

// Settlement данные об успешной оплате, пришедшие от платформы.
type Settlement struct {
	PaymentID  string
	Amount     int64
	Currency   string
	GatewayRef string
	ChatID     int64
}

// SettlementResult итог применения оплаты.
type SettlementResult struct {
	PaymentID    string
	IdentityID   string
	TenantID     string
	ServiceID    string
	TierID       string
	ExpiresAt    time.Time
	Renewals     int
	SettledAt    time.Time
	AlreadyFinal bool          // повторная доставка, состояние не менялось
	FinalStatus  PaymentStatus // статус записи после обработки
}

// PaymentSettledEvent событие для брокера после фиксации оплаты.
type PaymentSettledEvent struct {
	PaymentID  string    `json:"payment_id"`
	IdentityID string    `json:"identity_id"`
	TenantID   string    `json:"tenant_id"`
	ServiceID  string    `json:"service_id"`
	TierID     string    `json:"tier_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expires_at"`
	Renewals   int       `json:"renewals"`
	SettledAt  time.Time `json:"settled_at"`
}
