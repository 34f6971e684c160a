// Package session разрешает входящие запросы в контекст аутентификации
// и отзывает все сессии личности сменой security stamp.
package session

import (
	"errors"

	"github.com/magabrotheeeer/botgate/internal/lib/jwt"
)

// Причины отказа в аутентификации.
const (
	ReasonAuthRequired     = "auth_required"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonSessionExpired   = "session_expired"
	ReasonStampRevoked     = "stamp_revoked"
	ReasonIdentityDenied   = "identity_denied"
)

var (
	// ErrAuthRequired в запросе нет сессии.
	ErrAuthRequired = errors.New("auth required")
	// ErrStampRevoked stamp в сессии не совпадает с текущим.
	ErrStampRevoked = errors.New("stamp revoked")
	// ErrIdentityDenied личность заблокирована или удалена.
	ErrIdentityDenied = errors.New("identity denied")
	// ErrSignatureInvalid и ErrSessionExpired приходят из кодека сессий.
	ErrSignatureInvalid = jwt.ErrSignatureInvalid
	ErrSessionExpired   = jwt.ErrSessionExpired
)

// UnauthenticatedError отказ в аутентификации с причиной.
type UnauthenticatedError struct {
	Reason string
	Err    error
}

func (e *UnauthenticatedError) Error() string {
	return "unauthenticated: " + e.Reason
}

func (e *UnauthenticatedError) Unwrap() error {
	return e.Err
}

// Unauthenticated строит отказ по известной причине.
func Unauthenticated(reason string) *UnauthenticatedError {
	return &UnauthenticatedError{Reason: reason, Err: reasonErr(reason)}
}

// ReasonOf достаёт причину отказа из цепочки ошибок.
func ReasonOf(err error) (string, bool) {
	var ue *UnauthenticatedError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	return "", false
}

func reasonErr(reason string) error {
	switch reason {
	case ReasonAuthRequired:
		return ErrAuthRequired
	case ReasonSignatureInvalid:
		return ErrSignatureInvalid
	case ReasonSessionExpired:
		return ErrSessionExpired
	case ReasonStampRevoked:
		return ErrStampRevoked
	case ReasonIdentityDenied:
		return ErrIdentityDenied
	default:
		return errors.New(reason)
	}
}
