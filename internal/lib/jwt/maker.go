package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/botgate/internal/models"
)

// Issue подписывает сессию для личности со снимком её текущего stamp.
// Возвращает токен и момент истечения.
func (j *Maker) Issue(identity *models.Identity) (string, time.Time, error) {
	const op = "jwt.Issue"
	if identity == nil || identity.ID == "" {
		return "", time.Time{}, fmt.Errorf("%s: empty identity", op)
	}

	now := j.now()
	exp := now.Add(j.tokenTTL)
	claims := Claims{
		Role:     identity.Role,
		TenantID: identity.Tenant(),
		Stamp:    identity.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return signed, exp, nil
}

// Verify проверяет подпись и срок. Stamp здесь не сравнивается.
func (j *Maker) Verify(credential string) (*Claims, error) {
	const op = "jwt.Verify"

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrSignatureInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	}
	return claims, nil
}
