package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"civitec.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	payload, _ := json.Marshal(entry.Payload)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, actor_id, action, entity_kind, entity_id, payload, ip, user_agent, url, method, created_at)
		 values($1,nullif($2,''),$3,$4,$5,$6,nullif($7,''),$8,$9,$10,$11)`,
		entry.ID, entry.ActorID, entry.Action, entry.EntityKind, entry.EntityID,
		payload, entry.IP, entry.UserAgent, entry.URL, entry.Method, entry.CreatedAt,
	)
	return err
}

func (s *PGStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(actor_id,''), action, entity_kind, entity_id, payload, coalesce(ip,''), user_agent, url, method, created_at
		 from audit_log order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityKind, &e.EntityID,
			&payload, &e.IP, &e.UserAgent, &e.URL, &e.Method, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(payload, &e.Payload)
		res = append(res, &e)
	}
	return res, rows.Err()
}
