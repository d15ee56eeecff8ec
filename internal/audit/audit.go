// Package audit appends immutable records of security-relevant actions.
// Recording is fire-and-observe: a failed append is logged, never returned,
// so the primary operation is never failed by its own audit trail.
package audit

import (
	"context"
	"time"

	"civitec.org/internal/obs"
)

// Action kinds mirrored from the administrative domain.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionLogin  = "LOGIN"
	ActionAccept = "ACCEPT"
	ActionCancel = "CANCEL"
)

// Entry is one appended audit record. EntityKind plus EntityID form a
// polymorphic reference to the affected record.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	URL        string         `json:"url,omitempty"`
	Method     string         `json:"method,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store appends immutable entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
}

// RequestMeta is the transport metadata captured by middleware.
type RequestMeta struct {
	IP        string
	UserAgent string
	URL       string
	Method    string
}

type metaContextKey struct{}

// ContextWithMeta attaches request metadata for later audit records.
func ContextWithMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext returns the request metadata if middleware attached it.
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(metaContextKey{}).(RequestMeta)
	return meta, ok
}

// Recorder writes entries through a Store.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder. A nil store disables persistence; events
// still reach the structured log.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends one entry enriched with request metadata from the context.
func (r *Recorder) Record(ctx context.Context, actorID, action, entityKind, entityID string, payload map[string]any) {
	entry := &Entry{
		ActorID:    actorID,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  r.now().UTC(),
	}
	if meta, ok := MetaFromContext(ctx); ok {
		entry.IP = meta.IP
		entry.UserAgent = meta.UserAgent
		entry.URL = meta.URL
		entry.Method = meta.Method
	}

	obs.LogRequest(map[string]any{
		"ts":          entry.CreatedAt.Format(time.RFC3339Nano),
		"type":        "audit",
		"action":      action,
		"entity_kind": entityKind,
		"entity_id":   entityID,
		"actor_id":    actorID,
	})

	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error", "msg": "audit append failed", "error": err.Error(),
		})
	}
}
