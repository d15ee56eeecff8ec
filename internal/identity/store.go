package identity

import "context"

// Store describes persistence operations required by the credential store.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// HasActiveEmail reports whether an active user already owns the email.
	HasActiveEmail(ctx context.Context, email string) (bool, error)
}
