package dialogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightsmile/clinic-assistant/internal/session"
)

// TranscriptStore persists conversations and their messages to PostgreSQL for
// long-term history. A nil store is a no-op, so transcript logging stays
// optional.
type TranscriptStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db, now: time.Now}
}

// TranscriptMessage is one stored message row.
type TranscriptMessage struct {
	ID        uuid.UUID
	SessionID string
	Role      string
	Content   string
	Node      string
	CreatedAt time.Time
}

// EnsureConversation upserts the conversation row for a session and bumps its
// last activity.
func (t *TranscriptStore) EnsureConversation(ctx context.Context, sess *session.Session) error {
	if t == nil || t.db == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, user_id, channel, started_at, last_message_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (session_id) DO UPDATE SET last_message_at = $4`,
		sess.ID, sess.Key.UserID, string(sess.Key.Channel), t.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("transcript: ensure conversation: %w", err)
	}
	return nil
}

// LogExchange records one user/assistant exchange. Both rows land in one
// transaction so a half-written exchange never appears in the history.
func (t *TranscriptStore) LogExchange(ctx context.Context, sess *session.Session, userMessage, reply string) error {
	if t == nil || t.db == nil {
		return nil
	}
	if err := t.EnsureConversation(ctx, sess); err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transcript: begin: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO conversation_messages (id, session_id, role, content, node, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`
	now := t.now().UTC()
	if _, err := tx.ExecContext(ctx, insert,
		uuid.New(), sess.ID, "user", userMessage, sess.CurrentNode, now); err != nil {
		return fmt.Errorf("transcript: insert user message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert,
		uuid.New(), sess.ID, "assistant", reply, sess.CurrentNode, now); err != nil {
		return fmt.Errorf("transcript: insert assistant message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transcript: commit: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in chronological order.
func (t *TranscriptStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]TranscriptMessage, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, node, created_at
		 FROM conversation_messages WHERE session_id = $1
		 ORDER BY created_at ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("transcript: list messages: %w", err)
	}
	defer rows.Close()

	var out []TranscriptMessage
	for rows.Next() {
		var m TranscriptMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Node, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("transcript: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript: iterate messages: %w", err)
	}
	return out, nil
}
