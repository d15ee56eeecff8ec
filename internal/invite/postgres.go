package invite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"civitec.org/internal/identity"
	"civitec.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. State transitions use
// conditional updates on status='PENDING' so that two racing accepts
// serialize on the row and exactly one wins.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const inviteColumns = `id, email, full_name, role_code, coalesce(sector_code,''), security_code, token, status, expires_at, accepted_at, created_by, created_at, updated_at`

func scanInvite(row interface{ Scan(...any) error }) (*Invite, error) {
	var inv Invite
	var role, sector, status string
	var acceptedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.Email, &inv.FullName, &role, &sector,
		&inv.SecurityCode, &inv.Token, &status, &inv.ExpiresAt, &acceptedAt,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inv.Role = identity.Role(role)
	inv.Sector = identity.Sector(sector)
	inv.Status = Status(status)
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return &inv, nil
}

func (s *PGStore) Create(ctx context.Context, inv *Invite) error {
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	_, err := s.db.ExecContext(ctx,
		`insert into user_invites(id, email, full_name, role_code, sector_code, security_code, token, status, expires_at, created_by)
		 values($1,$2,$3,$4,nullif($5,''),$6,$7,$8,$9,$10)`,
		inv.ID, inv.Email, inv.FullName, string(inv.Role), string(inv.Sector),
		inv.SecurityCode, inv.Token, string(inv.Status), inv.ExpiresAt, inv.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "token") {
			return ErrTokenCollision
		}
		return err
	}
	return nil
}

func (s *PGStore) FindByToken(ctx context.Context, token string) (*Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+inviteColumns+` from user_invites where token=$1`, token)
	return scanInvite(row)
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+inviteColumns+` from user_invites where id=$1`, id)
	return scanInvite(row)
}

func (s *PGStore) List(ctx context.Context) ([]*Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+inviteColumns+` from user_invites order by created_at desc`)
	if err != nil {
		return nil, err
	}
	return collectInvites(rows)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+inviteColumns+` from user_invites where status=$1 order by created_at desc`,
		string(status))
	if err != nil {
		return nil, err
	}
	return collectInvites(rows)
}

func collectInvites(rows *sql.Rows) ([]*Invite, error) {
	defer rows.Close()
	var res []*Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (s *PGStore) HasPendingForEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from user_invites where email=$1 and status='PENDING')`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&exists)
	return exists, err
}

func (s *PGStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx,
		`update user_invites set status='ACCEPTED', accepted_at=$2, updated_at=now()
		 where id=$1 and status='PENDING'`, id, at)
}

func (s *PGStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(ctx,
		`update user_invites set status='EXPIRED', updated_at=now()
		 where id=$1 and status='PENDING'`, id)
}

func (s *PGStore) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(ctx,
		`update user_invites set status='CANCELLED', updated_at=now()
		 where id=$1 and status='PENDING'`, id)
}

func (s *PGStore) transition(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Row absent or no longer pending; distinguish for the caller.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from user_invites where id=$1)`, args[0]).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from user_invites where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
