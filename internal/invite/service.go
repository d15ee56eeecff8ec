package invite

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
	"time"

	"civitec.org/internal/identity"
	"civitec.org/internal/obs"
)

const (
	defaultTTL = 72 * time.Hour

	// Token generation retries before giving up on a unique collision.
	maxTokenAttempts = 3
)

// Notifier delivers invite and welcome notifications. SendInvite failure is
// fatal for creation; SendWelcome failure is swallowed by the caller.
type Notifier interface {
	SendInvite(ctx context.Context, inv *Invite, acceptURL string) error
	SendWelcome(ctx context.Context, u *identity.User) error
}

// Service drives the invite workflow end to end: creation with compensating
// delete on delivery failure, public validation, public acceptance, and
// cancellation.
type Service struct {
	invites Store
	users   identity.Store
	mailer  Notifier
	policy  identity.PasswordPolicy

	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the invite validity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBaseURL sets the frontend base used when constructing accept links.
func WithBaseURL(base string) Option {
	return func(s *Service) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithPasswordPolicy overrides the password strength validator.
func WithPasswordPolicy(p identity.PasswordPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// NewService constructs the workflow engine.
func NewService(invites Store, users identity.Store, mailer Notifier, opts ...Option) *Service {
	s := &Service{
		invites: invites,
		users:   users,
		mailer:  mailer,
		policy:  identity.DefaultPasswordPolicy{},
		ttl:     defaultTTL,
		baseURL: "http://localhost:3000",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcceptURL builds the link embedded in the invite notification. The security
// code travels in the same message but never inside the URL.
func (s *Service) AcceptURL(inv *Invite) string {
	return s.baseURL + "/invite/accept?token=" + url.QueryEscape(inv.Token)
}

// CreateParams are the operator-provided invite attributes.
type CreateParams struct {
	Email     string
	FullName  string
	Role      identity.Role
	Sector    identity.Sector
	CreatedBy string
}

// Create issues a new invite and asks for its delivery. If delivery fails the
// invite record is deleted again so no recipient-less pending invite survives.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Invite, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.FullName) == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if p.Role != identity.RoleMasterAdmin && p.Sector == "" {
		return nil, fmt.Errorf("%w: sector_code is required for role %s", ErrInvalidInput, p.Role)
	}

	pending, err := s.invites.HasPendingForEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicatePending
	}
	taken, err := s.users.HasActiveEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	code, err := newSecurityCode()
	if err != nil {
		return nil, err
	}

	inv := &Invite{
		Email:        email,
		FullName:     strings.TrimSpace(p.FullName),
		Role:         p.Role,
		Sector:       p.Sector,
		SecurityCode: code,
		Status:       StatusPending,
		ExpiresAt:    s.now().UTC().Add(s.ttl),
		CreatedBy:    p.CreatedBy,
	}
	if err := s.persistWithFreshToken(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.mailer.SendInvite(ctx, inv, s.AcceptURL(inv)); err != nil {
		// The invitee never learned about this invite; roll it back.
		if delErr := s.invites.Delete(ctx, inv.ID); delErr != nil {
			obs.LogRequest(map[string]any{
				"level": "error", "msg": "invite compensation delete failed",
				"invite_id": inv.ID, "error": delErr.Error(),
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	obs.InviteIssued()
	return inv, nil
}

// persistWithFreshToken regenerates the token on a unique violation, bounded
// so a broken random source fails loudly instead of spinning.
func (s *Service) persistWithFreshToken(ctx context.Context, inv *Invite) error {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := newToken()
		if err != nil {
			return err
		}
		inv.Token = token
		err = s.invites.Create(ctx, inv)
		if err == nil {
			return nil
		}
		if err != ErrTokenCollision {
			return err
		}
	}
	return ErrTokenCollision
}

// Summary is the masked projection returned by Validate. The security code is
// never echoed back; Accept is the sole authority over it.
type Summary struct {
	FullName      string `json:"full_name"`
	MaskedEmail   string `json:"email"`
	RoleDisplay   string `json:"role_display"`
	SectorDisplay string `json:"sector_display"`
}

// Validate checks a token/code pair from the public endpoint. Observing an
// expired pending invite transitions it to EXPIRED as a side effect.
func (s *Service) Validate(ctx context.Context, token, code string) (*Summary, error) {
	inv, err := s.checkUsable(ctx, token, code)
	if err != nil {
		return nil, err
	}
	return &Summary{
		FullName:      inv.FullName,
		MaskedEmail:   MaskEmail(inv.Email),
		RoleDisplay:   inv.Role.Display(),
		SectorDisplay: inv.Sector.Display(),
	}, nil
}

// checkUsable loads the invite by token and enforces status, expiry and the
// security code. Expiry observed here is written back (lazy transition).
func (s *Service) checkUsable(ctx context.Context, token, code string) (*Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	inv, err := s.invites.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case StatusAccepted:
		return nil, ErrAlreadyAccepted
	case StatusCancelled:
		return nil, ErrCancelled
	case StatusExpired:
		return nil, ErrExpired
	}
	if inv.IsExpired(s.now().UTC()) {
		if err := s.invites.MarkExpired(ctx, inv.ID); err != nil && err != ErrInvalidTransition {
			return nil, err
		}
		return nil, ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(inv.SecurityCode), []byte(strings.TrimSpace(code))) != 1 {
		return nil, ErrInvalidCode
	}
	return inv, nil
}

// AcceptParams are the invitee-provided acceptance attributes.
type AcceptParams struct {
	Token           string
	SecurityCode    string
	Password        string
	PasswordConfirm string
}

// Accept redeems an invite: re-validates token/code/expiry independently of
// any prior Validate call, enforces the password policy, finds or creates the
// user by email, and transitions the invite to ACCEPTED exactly once. The
// welcome notification is best-effort.
func (s *Service) Accept(ctx context.Context, p AcceptParams) (*identity.User, error) {
	if p.Password != p.PasswordConfirm {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	if violations := s.policy.Validate(p.Password); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(violations, "; "))
	}

	inv, err := s.checkUsable(ctx, p.Token, p.SecurityCode)
	if err != nil {
		return nil, err
	}

	hash, err := identity.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.materializeUser(ctx, inv, hash)
	if err != nil {
		return nil, err
	}

	// The conditional update is the one-shot guarantee: a racing accept
	// observes a non-pending row here and fails cleanly.
	if err := s.invites.MarkAccepted(ctx, inv.ID, s.now().UTC()); err != nil {
		if err == ErrInvalidTransition {
			return nil, ErrAlreadyAccepted
		}
		return nil, err
	}
	obs.InviteAccepted()

	if err := s.mailer.SendWelcome(ctx, user); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn", "msg": "welcome notification failed",
			"user_id": user.ID, "error": err.Error(),
		})
	}
	return user, nil
}

// materializeUser finds the user by invite email and updates it in place, or
// creates a fresh record populated from the invite.
func (s *Service) materializeUser(ctx context.Context, inv *Invite, passwordHash string) (*identity.User, error) {
	first, last := identity.SplitFullName(inv.FullName)

	user, err := s.users.FindByEmail(ctx, inv.Email)
	switch err {
	case nil:
		user.FirstName = first
		user.LastName = last
		user.Role = inv.Role
		user.Sector = inv.Sector
		user.IsActive = true
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
	case identity.ErrNotFound:
		user = &identity.User{
			Email:     inv.Email,
			Username:  inv.Email,
			FirstName: first,
			LastName:  last,
			Role:      inv.Role,
			Sector:    inv.Sector,
			IsActive:  true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if err == identity.ErrAlreadyExists {
				// Lost the race to a concurrent accept for the same email.
				return s.materializeUser(ctx, inv, passwordHash)
			}
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash
	return user, nil
}

// Cancel voids a pending invite. Non-pending invites fail with
// ErrInvalidTransition, surfaced by the boundary as a conflict.
func (s *Service) Cancel(ctx context.Context, id string) (*Invite, error) {
	if err := s.invites.MarkCancelled(ctx, id); err != nil {
		return nil, err
	}
	return s.invites.FindByID(ctx, id)
}

// List returns every invite, newest first.
func (s *Service) List(ctx context.Context) ([]*Invite, error) {
	return s.invites.List(ctx)
}

// ListPending returns invites still awaiting acceptance.
func (s *Service) ListPending(ctx context.Context) ([]*Invite, error) {
	return s.invites.ListByStatus(ctx, StatusPending)
}

// Get returns one invite by id.
func (s *Service) Get(ctx context.Context, id string) (*Invite, error) {
	return s.invites.FindByID(ctx, id)
}

// MaskEmail hides the local part beyond its first two characters.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + domain
}
