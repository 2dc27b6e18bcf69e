package stepper

import (
	"context"

	"github.com/tamoortahir09/atlas-store/internal/domain"
)

// Repository persists stepper sessions so a client reload resumes from the
// last applied transition. One session per steam id.
type Repository interface {
	// GetSession retrieves the persisted session. Returns ErrNotFound when
	// none exists.
	GetSession(ctx context.Context, steamID string) (*domain.StepperSession, error)

	// SaveSession replaces the persisted session atomically.
	SaveSession(ctx context.Context, session *domain.StepperSession) error

	// DeleteSession discards the persisted session. Deleting a missing
	// session is not an error.
	DeleteSession(ctx context.Context, steamID string) error
}
