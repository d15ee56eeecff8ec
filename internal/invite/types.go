package invite

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"civitec.org/internal/identity"
)

var (
	ErrNotFound          = errors.New("invite: not found")
	ErrInvalidInput      = errors.New("invite: invalid input")
	ErrInvalidCode       = errors.New("invite: incorrect security code")
	ErrExpired           = errors.New("invite: invite has expired")
	ErrAlreadyAccepted   = errors.New("invite: invite was already used")
	ErrCancelled         = errors.New("invite: invite was cancelled")
	ErrInvalidTransition = errors.New("invite: only pending invites can change state")
	ErrDuplicatePending  = errors.New("invite: a pending invite already exists for this email")
	ErrEmailTaken        = errors.New("invite: an active user already owns this email")
	ErrTokenCollision    = errors.New("invite: token generation collided")
	ErrDelivery          = errors.New("invite: notification delivery failed")
)

// Status is the invite lifecycle state. Transitions are one-directional:
// PENDING is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Invite is a time-boxed, single-use grant allowing an unauthenticated party
// to establish credentials for a new or dormant user.
type Invite struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	FullName     string          `json:"full_name"`
	Role         identity.Role   `json:"role_code"`
	Sector       identity.Sector `json:"sector_code,omitempty"`
	SecurityCode string          `json:"-"`
	Token        string          `json:"-"`
	Status       Status          `json:"status"`
	ExpiresAt    time.Time       `json:"expires_at"`
	AcceptedAt   *time.Time      `json:"accepted_at,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsExpired reports whether the validity window has passed at the given time.
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsValid reports whether the invite is still usable: pending and unexpired.
func (i *Invite) IsValid(now time.Time) bool {
	return i.Status == StatusPending && !i.IsExpired(now)
}

const tokenBytes = 32

// newToken returns a URL-safe bearer string with 32 bytes of entropy.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var codeSpace = big.NewInt(1000000)

// newSecurityCode returns six uniform decimal digits. Codes are not unique
// across invites; the token is the addressable key.
func newSecurityCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate security code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
