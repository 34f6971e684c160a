// Package models содержит доменные структуры: личность пользователя платформы,
// одноразовые токены входа, платежи, подписки и тарифы.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// Role роль личности
type Role string

// Роли личностей. Staff-роли упорядочены по возрастанию прав.
const (
	RoleUser           Role = "user"
	RoleTenantOperator Role = "tenant_operator"
	RoleStaffSupport   Role = "staff_support"
	RoleStaffAdmin     Role = "staff_admin"
)

// Valid проверяет, что роль входит в перечисление.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTenantOperator, RoleStaffSupport, RoleStaffAdmin:
		return true
	}
	return false
}

// IsStaff сообщает, относится ли роль к персоналу платформы.
func (r Role) IsStaff() bool {
	return r == RoleStaffSupport || r == RoleStaffAdmin
}

// IdentityStatus жизненный цикл личности. Жёсткого удаления нет.
type IdentityStatus string

const (
	IdentityActive  IdentityStatus = "active"
	IdentityBlocked IdentityStatus = "blocked"
	IdentityDeleted IdentityStatus = "deleted"
)

// Identity представляет субъекта, подтверждённого платформой сообщений.
type Identity struct {
	ID            string         `json:"id"`
	ExternalID    int64          `json:"external_id"` // id пользователя на платформе
	DisplayName   string         `json:"display_name"`
	Role          Role           `json:"role"`
	TenantID      *string        `json:"tenant_id,omitempty"`
	SecurityStamp string         `json:"-"`
	Status        IdentityStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Active сообщает, может ли личность получать сессии.
func (i *Identity) Active() bool {
	return i.Status == IdentityActive
}

// Tenant возвращает id арендатора или пустую строку.
func (i *Identity) Tenant() string {
	if i.TenantID == nil {
		return ""
	}
	return *i.TenantID
}
