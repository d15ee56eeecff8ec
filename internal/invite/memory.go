package invite

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"civitec.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	invites map[string]*Invite
	byToken map[string]string // token -> id
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty invite ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		invites: make(map[string]*Invite),
		byToken: make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, inv *Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[inv.Token]; ok {
		return ErrTokenCollision
	}
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	now := time.Now().UTC()
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	inv.CreatedAt = now
	inv.UpdatedAt = now
	cp := *inv
	s.invites[inv.ID] = &cp
	s.byToken[inv.Token] = inv.ID
	return nil
}

func (s *InMemory) FindByToken(ctx context.Context, token string) (*Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.invites[id]
	return &cp, nil
}

func (s *InMemory) FindByID(ctx context.Context, id string) (*Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemory) List(ctx context.Context) ([]*Invite, error) {
	return s.list(func(*Invite) bool { return true })
}

func (s *InMemory) ListByStatus(ctx context.Context, status Status) ([]*Invite, error) {
	return s.list(func(inv *Invite) bool { return inv.Status == status })
}

func (s *InMemory) list(keep func(*Invite) bool) ([]*Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Invite
	for _, inv := range s.invites {
		if keep(inv) {
			cp := *inv
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *InMemory) HasPendingForEmail(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invites {
		if inv.Email == email && inv.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	return s.transition(id, StatusAccepted, &at)
}

func (s *InMemory) MarkExpired(ctx context.Context, id string) error {
	return s.transition(id, StatusExpired, nil)
}

func (s *InMemory) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(id, StatusCancelled, nil)
}

func (s *InMemory) transition(id string, to Status, acceptedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return ErrNotFound
	}
	if inv.Status != StatusPending {
		return ErrInvalidTransition
	}
	inv.Status = to
	inv.AcceptedAt = acceptedAt
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, inv.Token)
	delete(s.invites, id)
	return nil
}
