package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/magabrotheeeer/botgate/internal/lib/jwt"
	"github.com/magabrotheeeer/botgate/internal/metrics"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// AuthContext результат успешного разрешения сессии.
type AuthContext struct {
	IdentityID string      `json:"identity_id"`
	Role       models.Role `json:"role"`
	TenantID   string      `json:"tenant_id,omitempty"`
}

// StampReader чтение текущего stamp и статуса личности.
type StampReader interface {
	SecurityStamp(ctx context.Context, identityID string) (string, models.IdentityStatus, error)
}

// CredentialResolver разрешает значение сессии в контекст.
// Реализуется Resolver и gRPC-клиентом сервиса сессий.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, credential string) (*AuthContext, error)
}

// Resolver проверяет подпись сессии локально, затем сверяет stamp с базой.
type Resolver struct {
	codec      jwt.Codec
	stamps     StampReader
	cookieName string
	metrics    metrics.Recorder
}

// NewResolver создаёт Resolver.
func NewResolver(codec jwt.Codec, stamps StampReader, cookieName string, rec metrics.Recorder) *Resolver {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Resolver{
		codec:      codec,
		stamps:     stamps,
		cookieName: cookieName,
		metrics:    rec,
	}
}

// Resolve разрешает запрос. Cookie имеет приоритет над заголовком Authorization.
func (r *Resolver) Resolve(req *http.Request) (*AuthContext, error) {
	return ResolveRequest(req, r.cookieName, r)
}

// ResolveRequest извлекает сессию из запроса и передаёт её backend.
func ResolveRequest(req *http.Request, cookieName string, backend CredentialResolver) (*AuthContext, error) {
	credential := Credential(req, cookieName)
	if credential == "" {
		return nil, Unauthenticated(ReasonAuthRequired)
	}
	return backend.ResolveCredential(req.Context(), credential)
}

// Credential возвращает значение сессии из cookie или Bearer-заголовка.
func Credential(req *http.Request, cookieName string) string {
	if c, err := req.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// ResolveCredential проверяет сессию и текущий stamp личности.
func (r *Resolver) ResolveCredential(ctx context.Context, credential string) (*AuthContext, error) {
	const op = "session.ResolveCredential"

	if credential == "" {
		return nil, r.reject(ReasonAuthRequired)
	}

	claims, err := r.codec.Verify(credential)
	if err != nil {
		if errors.Is(err, jwt.ErrSessionExpired) {
			return nil, r.reject(ReasonSessionExpired)
		}
		return nil, r.reject(ReasonSignatureInvalid)
	}

	stamp, status, err := r.stamps.SecurityStamp(ctx, claims.IdentityID())
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return nil, r.reject(ReasonIdentityDenied)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != models.IdentityActive {
		return nil, r.reject(ReasonIdentityDenied)
	}
	if subtle.ConstantTimeCompare([]byte(stamp), []byte(claims.Stamp)) != 1 {
		return nil, r.reject(ReasonStampRevoked)
	}

	return &AuthContext{
		IdentityID: claims.IdentityID(),
		Role:       claims.Role,
		TenantID:   claims.TenantID,
	}, nil
}

func (r *Resolver) reject(reason string) error {
	r.metrics.ResolveRejected(reason)
	return Unauthenticated(reason)
}
