package session

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/botgate/internal/lib/tokenhash"
)

// StampWriter запись нового stamp личности.
type StampWriter interface {
	SetSecurityStamp(ctx context.Context, identityID, stamp string) error
}

// Rotator отзывает все выданные сессии личности.
type Rotator struct {
	stamps StampWriter
}

// NewRotator создаёт Rotator.
func NewRotator(stamps StampWriter) *Rotator {
	return &Rotator{stamps: stamps}
}

// Rotate заменяет stamp личности случайным значением.
// Все ранее выданные сессии перестают проходить проверку при следующем запросе.
func (r *Rotator) Rotate(ctx context.Context, identityID string) error {
	const op = "session.Rotate"

	stamp, err := tokenhash.Random()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.stamps.SetSecurityStamp(ctx, identityID, stamp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
