package invite

import (
	"context"
	"time"
)

// Store owns invite persistence and transition validity. The Mark operations
// are conditional on the current status being PENDING and fail with
// ErrInvalidTransition otherwise; that check is what makes acceptance
// one-shot under concurrent calls.
type Store interface {
	// Create persists a new invite. The token must be unique across all
	// invites ever created; a collision fails the insert.
	Create(ctx context.Context, inv *Invite) error
	FindByToken(ctx context.Context, token string) (*Invite, error)
	FindByID(ctx context.Context, id string) (*Invite, error)
	List(ctx context.Context) ([]*Invite, error)
	ListByStatus(ctx context.Context, status Status) ([]*Invite, error)
	HasPendingForEmail(ctx context.Context, email string) (bool, error)

	MarkAccepted(ctx context.Context, id string, at time.Time) error
	MarkExpired(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string) error

	// Delete removes an invite record. Only used to compensate when the
	// invite notification cannot be delivered during creation.
	Delete(ctx context.Context, id string) error
}
