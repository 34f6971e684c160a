package models

import "time"

// MagicToken одноразовый токен входа. Хранится только дайджест значения.
type MagicToken struct {
	Digest     string
	IdentityID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Used       bool
}
