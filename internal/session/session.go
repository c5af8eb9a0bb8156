// Package session owns per-user conversation state between turns. A session
// is checked out by the engine at the start of a turn and committed back with
// optimistic versioning, so two in-flight turns can never silently clobber
// each other's context.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel identifies which transport the conversation is happening on.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
	ChannelOther Channel = "other"
)

// Key identifies the one live session for a (user, channel) pair.
type Key struct {
	UserID  string  `json:"user_id"`
	Channel Channel `json:"channel"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Channel, k.UserID)
}

// Turn is one transcript entry.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversational state carried across turns. Version is the
// optimistic-concurrency counter: Save rejects a session whose version no
// longer matches the stored one.
type Session struct {
	ID             string            `json:"id"`
	Key            Key               `json:"key"`
	CurrentNode    string            `json:"current_node"`
	Context        map[string]string `json:"context"`
	History        []Turn            `json:"history"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// New creates a fresh session positioned at the initial node.
func New(key Key, initialNode string, now time.Time) *Session {
	return &Session{
		ID:             uuid.NewString(),
		Key:            key,
		CurrentNode:    initialNode,
		Context:        make(map[string]string),
		Version:        1,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without racing the store.
func (s *Session) Clone() *Session {
	cloned := *s
	cloned.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		cloned.Context[k] = v
	}
	cloned.History = make([]Turn, len(s.History))
	copy(cloned.History, s.History)
	return &cloned
}

// AppendTurn records a transcript entry and bumps activity.
func (s *Session) AppendTurn(role, content string, now time.Time) {
	s.History = append(s.History, Turn{Role: role, Content: content, Timestamp: now})
	s.LastActivityAt = now
}
