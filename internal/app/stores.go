package app

import (
	"context"
	"time"

	"geminichat/internal/ai"
	"geminichat/internal/model"
)

// SessionStore is the session persistence capability used by the chat
// and title services. Lookups scoped by user return nil when the
// session is absent or owned by someone else.
type SessionStore interface {
	Create(session *model.Session) error
	GetByID(sessionID string) (*model.Session, error)
	GetByIDAndUserID(sessionID, userID string) (*model.Session, error)
	ListByUserID(userID string) ([]model.Session, error)
	// UpdateTitle applies the new title and reads the latest message
	// timestamp in one transaction. The returned time falls back to the
	// session's creation time when no messages exist.
	UpdateTitle(sessionID, title string) (*model.Session, time.Time, error)
}

type MessageStore interface {
	Create(message *model.Message) error
	ListBySessionID(sessionID string) ([]model.Message, error)
	ListEarliestBySessionID(sessionID string, limit int) ([]model.Message, error)
	// LatestAt returns the newest message timestamp for a session;
	// found is false when the session has no messages.
	LatestAt(sessionID string) (latest time.Time, found bool, err error)
}

// Generator is the text-generation backend capability.
type Generator interface {
	Generate(ctx context.Context, cfg ai.GenerateConfig, contents []ai.Content) (string, error)
	StreamGenerate(ctx context.Context, cfg ai.GenerateConfig, contents []ai.Content, onChunk func(chunk string) error) (string, error)
}

// RenameTrigger requests a best-effort auto-rename of a session after
// its first completed turn.
type RenameTrigger interface {
	TriggerRename(ctx context.Context, sessionID, userID string) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}
