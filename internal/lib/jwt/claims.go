// Package jwt реализует выпуск и проверку подписанных сессий.
//
// Сессия не хранится на сервере: claims несут id личности, роль, арендатора
// и снимок security stamp. Проверка подписи и срока выполняется локально, без I/O.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/botgate/internal/models"
)

var (
	// ErrSignatureInvalid подпись не сходится или токен повреждён.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSessionExpired истёк срок сессии.
	ErrSessionExpired = errors.New("session expired")
)

// Claims описывает данные, хранящиеся в сессии.
type Claims struct {
	Role                 models.Role `json:"role"`
	TenantID             string      `json:"tenant_id,omitempty"`
	Stamp                string      `json:"stamp"`
	jwt.RegisteredClaims             // sub, iat, exp
}

// IdentityID возвращает id личности из sub.
func (c *Claims) IdentityID() string {
	return c.Subject
}

// Codec описывает выпуск и проверку сессий.
type Codec interface {
	Issue(identity *models.Identity) (string, time.Time, error)
	Verify(credential string) (*Claims, error)
}

// Maker реализует Codec с HMAC-SHA256 подписью.
type Maker struct {
	secretKey []byte        // Секретный ключ для подписи
	tokenTTL  time.Duration // Время жизни сессии
	now       func() time.Time
}

// NewJWTMaker создаёт Maker на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *Maker {
	return &Maker{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени.
func (j *Maker) WithClock(now func() time.Time) *Maker {
	j.now = now
	return j
}
