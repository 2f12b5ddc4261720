package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"geminichat/internal/ai"
	"geminichat/internal/content"
	"geminichat/internal/model"
)

var (
	ErrRenameSessionNotFound = errors.New("session not found for rename")
	ErrRenameNoMessages      = errors.New("session has no messages to summarize")
)

const (
	maxTitleLength       = 50
	titleTranscriptLimit = 10

	titleInstruction = "Write a short title (max 50 characters) describing the conversation below. " +
		"Return only the title, with no quotes or extra explanation.\n\n"
	imageOnlyPlaceholder = "(user uploaded an image)"
)

// TitleService derives a session title from the opening turns of a
// conversation and applies it atomically.
type TitleService struct {
	sessionStore SessionStore
	messageStore MessageStore
	generator    Generator
	titleLLM     ai.GenerateConfig
}

func NewTitleService(
	sessionStore SessionStore,
	messageStore MessageStore,
	generator Generator,
	titleLLM ai.GenerateConfig,
) *TitleService {
	return &TitleService{
		sessionStore: sessionStore,
		messageStore: messageStore,
		generator:    generator,
		titleLLM:     titleLLM,
	}
}

// AutoRename titles a session from its first turns. Ownership is
// enforced when userID is non-empty. The title update and the latest
// message timestamp lookup are applied as one storage transaction.
func (s *TitleService) AutoRename(ctx context.Context, sessionID, userID string) (*SessionSummary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidRequest
	}

	var session *model.Session
	var err error
	if userID != "" {
		session, err = s.sessionStore.GetByIDAndUserID(sessionID, userID)
	} else {
		session, err = s.sessionStore.GetByID(sessionID)
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrRenameSessionNotFound
	}

	messages, err := s.messageStore.ListEarliestBySessionID(sessionID, titleTranscriptLimit)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrRenameNoMessages
	}

	cfg := s.titleLLM
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrLLMConfig
	}

	prompt := titleInstruction + buildTranscript(messages)
	raw, err := s.generator.Generate(ctx, cfg, []ai.Content{{
		Role:  ai.RoleUser,
		Parts: []ai.Part{{Text: prompt}},
	}})
	if err != nil {
		return nil, fmt.Errorf("generate title failed: %w", err)
	}

	title := sanitizeTitle(raw)
	updated, lastActivity, err := s.sessionStore.UpdateTitle(sessionID, title)
	if err != nil {
		return nil, fmt.Errorf("update session title failed: %w", err)
	}

	return &SessionSummary{
		ID:        updated.ID,
		Title:     updated.Title,
		CreatedAt: updated.CreatedAt,
		UpdatedAt: lastActivity,
	}, nil
}

// buildTranscript renders a compact role-labelled view of the opening
// turns, annotating image counts so the titler sees multimodal context.
func buildTranscript(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		decoded := content.Decode(message.Content)
		text := decoded.Text
		imageCount := len(decoded.Attachments)
		if strings.TrimSpace(text) == "" {
			text = ""
			if imageCount > 0 {
				text = imageOnlyPlaceholder
			}
		}
		line := message.Role + ": " + text
		if imageCount > 0 {
			line += fmt.Sprintf(" [%d images]", imageCount)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// sanitizeTitle normalizes model output into a storable title, falling
// back to a dated default when the model returns nothing usable.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)

	if len([]rune(title)) < 3 {
		title = "Conversation " + time.Now().Format("2006-01-02")
	}
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}
