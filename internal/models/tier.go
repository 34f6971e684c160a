package models

import "time"

// BillingInterval период оплаты тарифа
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Tier тариф сервиса арендатора
type Tier struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	ServiceID   string          `json:"service_id"`
	Name        string          `json:"name"`
	Price       int64           `json:"price"`
	Currency    string          `json:"currency"`
	Interval    BillingInterval `json:"interval,omitempty"` // пусто означает месяц
	Purchasable bool            `json:"purchasable"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// Available сообщает, можно ли сейчас купить тариф.
func (t *Tier) Available() bool {
	return t.DeletedAt == nil && t.Purchasable
}

// ExtendFrom вычисляет новую дату окончания: год для годового тарифа, иначе месяц.
func (i BillingInterval) ExtendFrom(now time.Time) time.Time {
	if i == IntervalYear {
		return now.AddDate(0, 12, 0)
	}
	return now.AddDate(0, 1, 0)
}
