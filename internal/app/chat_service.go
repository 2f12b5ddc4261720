package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"geminichat/internal/ai"
	"geminichat/internal/content"
	"geminichat/internal/model"
	"geminichat/internal/stream"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrSessionNotFound  = errors.New("session not found")
	ErrLLMConfig        = errors.New("llm config is invalid")
	ErrGenerationFailed = errors.New("generation failed")
)

type ChatService struct {
	sessionStore SessionStore
	messageStore MessageStore
	rename       RenameTrigger
	historyCache HistoryCache
	generator    Generator
	defaultLLM   ai.GenerateConfig
}

// TurnMessage is one prior-turn-shaped message from the client payload.
// Only the latest user entry is consulted; the rest locate it.
type TurnMessage struct {
	ID          string
	Role        string
	Content     string
	Attachments []content.AttachmentPayload
}

type SubmitTurnInput struct {
	UserID    string
	SessionID string
	Messages  []TurnMessage
	Message   string
}

type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewChatService(
	sessionStore SessionStore,
	messageStore MessageStore,
	rename RenameTrigger,
	historyCache HistoryCache,
	generator Generator,
	defaultLLM ai.GenerateConfig,
) *ChatService {
	return &ChatService{
		sessionStore: sessionStore,
		messageStore: messageStore,
		rename:       rename,
		historyCache: historyCache,
		generator:    generator,
		defaultLLM:   defaultLLM,
	}
}

func (s *ChatService) CreateSession(userID string) (*SessionSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}

	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     model.DefaultSessionTitle,
		CreatedAt: time.Now(),
	}
	if err := s.sessionStore.Create(session); err != nil {
		return nil, err
	}
	return &SessionSummary{
		ID:        session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.CreatedAt,
	}, nil
}

// ListSessions returns the caller's sessions ordered by last activity,
// newest first. updated_at is derived from the latest message timestamp
// and is never stored.
func (s *ChatService) ListSessions(userID string) ([]SessionSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}

	sessions, err := s.sessionStore.ListByUserID(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		lastActivity := session.CreatedAt
		if latest, found, latestErr := s.messageStore.LatestAt(session.ID); latestErr == nil && found {
			lastActivity = latest
		}
		summaries = append(summaries, SessionSummary{
			ID:        session.ID,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: lastActivity,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// GetSessionMessages replays the stored history of an owned session in
// chronological order, serving from the redis cache when it is fresh.
func (s *ChatService) GetSessionMessages(ctx context.Context, userID, sessionID string) ([]model.Message, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidRequest
	}

	session, err := s.sessionStore.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.historyCache != nil {
		dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID)
		if dirtyErr == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageStore.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// SubmitTurn validates and persists the incoming user turn, then starts
// generation and returns the pacer that replays the reply as
// per-character frames. Validation and the user-turn write happen
// before return, so every precondition failure surfaces without any
// streaming side effect.
//
// Generation runs detached from the request context: a reply that
// finishes server-side is persisted even when the client has already
// disconnected.
func (s *ChatService) SubmitTurn(ctx context.Context, input SubmitTurnInput) (*stream.Pacer, error) {
	if strings.TrimSpace(input.SessionID) == "" || strings.TrimSpace(input.UserID) == "" {
		return nil, ErrInvalidRequest
	}

	messages := input.Messages
	if len(messages) == 0 && strings.TrimSpace(input.Message) != "" {
		messages = []TurnMessage{{
			ID:      uuid.NewString(),
			Role:    model.RoleUser,
			Content: input.Message,
		}}
	}

	latest := latestUserMessage(messages)
	if latest == nil {
		return nil, ErrInvalidRequest
	}
	text := strings.TrimSpace(latest.Content)
	attachments := content.Sanitize(latest.Attachments)
	if text == "" && len(attachments) == 0 {
		return nil, ErrInvalidRequest
	}

	session, err := s.sessionStore.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	cfg, err := s.resolveLLM()
	if err != nil {
		return nil, err
	}

	history, err := s.messageStore.ListBySessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	// Decided before any write: only the very first turn of a still
	// default-titled session triggers auto-rename.
	firstTurn := len(history) == 0 && session.Title == model.DefaultSessionTitle

	if !alreadyStored(history, latest.ID) {
		userMessage := &model.Message{
			ID:        messageID(latest.ID),
			SessionID: input.SessionID,
			Role:      model.RoleUser,
			Content:   content.Encode(text, attachments),
			CreatedAt: time.Now(),
		}
		if err := s.messageStore.Create(userMessage); err != nil {
			return nil, fmt.Errorf("persist user turn failed: %w", err)
		}
		s.invalidateHistory(ctx, input.SessionID)
	}

	conversation := BuildConversation(history, text, attachments)

	buffer := stream.NewBuffer()
	genCtx, genCancel := context.WithCancel(context.Background())
	pacer := stream.NewPacer(buffer, genCancel)

	go s.runGeneration(genCtx, cfg, conversation, buffer, input.SessionID, input.UserID, firstTurn)

	return pacer, nil
}

func (s *ChatService) runGeneration(
	ctx context.Context,
	cfg ai.GenerateConfig,
	conversation []ai.Content,
	buffer *stream.Buffer,
	sessionID, userID string,
	firstTurn bool,
) {
	full, err := s.generator.StreamGenerate(ctx, cfg, conversation, func(chunk string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		buffer.Append(chunk)
		return nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("generation failed: session=%s err=%v", sessionID, err)
		}
		buffer.Fail(fmt.Errorf("%w: %v", ErrGenerationFailed, err))
		return
	}

	s.finishTurn(sessionID, userID, full, firstTurn)
	buffer.Close()
}

// finishTurn persists the assistant reply exactly once and fires the
// rename trigger for first turns after the write commits. Failures here
// are logged, never surfaced to the stream: frames already sent stand.
func (s *ChatService) finishTurn(sessionID, userID, fullText string, firstTurn bool) {
	trimmed := strings.TrimSpace(fullText)
	if trimmed != "" {
		assistantMessage := &model.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      model.RoleAssistant,
			Content:   trimmed,
			CreatedAt: time.Now(),
		}
		if err := s.messageStore.Create(assistantMessage); err != nil {
			log.Printf("persist assistant turn failed: session=%s err=%v", sessionID, err)
			return
		}
		s.invalidateHistory(context.Background(), sessionID)
	}

	if firstTurn && s.rename != nil {
		if err := s.rename.TriggerRename(context.Background(), sessionID, userID); err != nil {
			log.Printf("trigger auto rename failed: session=%s err=%v", sessionID, err)
		}
	}
}

func (s *ChatService) invalidateHistory(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, sessionID)
	_ = s.historyCache.DeleteHistory(ctx, sessionID)
}

func (s *ChatService) resolveLLM() (ai.GenerateConfig, error) {
	cfg := s.defaultLLM
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return ai.GenerateConfig{}, ErrLLMConfig
	}
	return cfg, nil
}

func latestUserMessage(messages []TurnMessage) *TurnMessage {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return &messages[i]
		}
	}
	return nil
}

// alreadyStored guards against duplicate user-turn writes when a client
// retries with the same message id.
func alreadyStored(history []model.Message, messageID string) bool {
	if strings.TrimSpace(messageID) == "" {
		return false
	}
	for _, message := range history {
		if message.ID == messageID {
			return true
		}
	}
	return false
}

func messageID(clientID string) string {
	if trimmed := strings.TrimSpace(clientID); trimmed != "" {
		return trimmed
	}
	return uuid.NewString()
}
