package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"geminichat/internal/ai"
	"geminichat/internal/app"
	"geminichat/internal/model"
	"geminichat/internal/transport/http/middleware"
	"geminichat/internal/transport/http/response"
)

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (s *memorySessionStore) Create(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memorySessionStore) GetByID(sessionID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *memorySessionStore) GetByIDAndUserID(sessionID, userID string) (*model.Session, error) {
	session, err := s.GetByID(sessionID)
	if err != nil || session == nil || session.UserID != userID {
		return nil, err
	}
	return session, nil
}

func (s *memorySessionStore) ListByUserID(userID string) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *memorySessionStore) UpdateTitle(sessionID, title string) (*model.Session, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[sessionID]
	session.Title = title
	copied := *session
	return &copied, session.CreatedAt, nil
}

type memoryMessageStore struct {
	mu       sync.Mutex
	messages []model.Message
}

func (s *memoryMessageStore) Create(message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *message)
	return nil
}

func (s *memoryMessageStore) ListBySessionID(sessionID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, message := range s.messages {
		if message.SessionID == sessionID {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *memoryMessageStore) ListEarliestBySessionID(sessionID string, limit int) ([]model.Message, error) {
	all, err := s.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memoryMessageStore) LatestAt(sessionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	found := false
	for _, message := range s.messages {
		if message.SessionID == sessionID && message.CreatedAt.After(latest) {
			latest = message.CreatedAt
			found = true
		}
	}
	return latest, found, nil
}

type scriptedGenerator struct {
	reply string
	title string
}

func (g *scriptedGenerator) StreamGenerate(ctx context.Context, cfg ai.GenerateConfig, contents []ai.Content, onChunk func(string) error) (string, error) {
	if err := onChunk(g.reply); err != nil {
		return "", err
	}
	return g.reply, nil
}

func (g *scriptedGenerator) Generate(ctx context.Context, cfg ai.GenerateConfig, contents []ai.Content) (string, error) {
	return g.title, nil
}

type noopRename struct{}

func (noopRename) TriggerRename(ctx context.Context, sessionID, userID string) error { return nil }

func newTestRouter(t *testing.T, userID string, generator *scriptedGenerator, sessions ...*model.Session) (*gin.Engine, *memoryMessageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionStore := &memorySessionStore{sessions: make(map[string]*model.Session)}
	for _, session := range sessions {
		sessionStore.sessions[session.ID] = session
	}
	messageStore := &memoryMessageStore{}

	llm := ai.GenerateConfig{BaseURL: "http://llm.test", APIKey: "k", Model: "gemini-2.5-pro"}
	chatService := app.NewChatService(sessionStore, messageStore, noopRename{}, nil, generator, llm)
	titleService := app.NewTitleService(sessionStore, messageStore, generator, llm)
	chatHandler := NewChatHandler(chatService, titleService)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
	})
	router.POST("/messages", chatHandler.SubmitTurn)
	router.POST("/sessions/:id/rename", chatHandler.RenameSession)
	router.GET("/sessions/:id/messages", chatHandler.GetSessionMessages)
	return router, messageStore
}

func TestSubmitTurnWireFormat(t *testing.T) {
	router, _ := newTestRouter(t, "u1", &scriptedGenerator{reply: "Ok."}, &model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now(),
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"sessionId":"s1","message":"hello"}`))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := recorder.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("buffering header = %q", got)
	}

	body := recorder.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	want := []string{
		`data: {"content":"O"}`,
		`data: {"content":"k"}`,
		`data: {"content":"."}`,
		`data: [DONE]`,
	}
	if len(frames) != len(want) {
		t.Fatalf("frame count = %d, want %d; body:\n%s", len(frames), len(want), body)
	}
	for i, frame := range frames {
		if frame != want[i] {
			t.Fatalf("frame %d = %q, want %q", i, frame, want[i])
		}
	}
}

func TestSubmitTurnRejectsBeforeStreaming(t *testing.T) {
	router, messageStore := newTestRouter(t, "u1", &scriptedGenerator{reply: "x"}, &model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now(),
	})

	cases := []struct {
		name       string
		payload    string
		wantStatus int
		wantCode   int
	}{
		{"unknown session", `{"sessionId":"missing","message":"hi"}`, http.StatusNotFound, response.CodeSessionNotFound},
		{"empty turn", `{"sessionId":"s1","message":"   "}`, http.StatusBadRequest, response.CodeBadRequest},
		{"malformed json", `{"sessionId":`, http.StatusBadRequest, response.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(tc.payload))
			request.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(recorder, request)

			if recorder.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", recorder.Code, tc.wantStatus, recorder.Body.String())
			}
			var envelope response.APIResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("error body must be plain JSON, got %q", recorder.Body.String())
			}
			if envelope.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", envelope.Code, tc.wantCode)
			}
			if strings.Contains(recorder.Body.String(), "data:") {
				t.Fatal("precondition failures must not emit stream frames")
			}
		})
	}

	if all, _ := messageStore.ListBySessionID("s1"); len(all) != 0 {
		t.Fatalf("rejected turns persisted messages: %+v", all)
	}
}

func TestRenameSessionEndpoint(t *testing.T) {
	session := &model.Session{ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now()}
	router, messageStore := newTestRouter(t, "u1", &scriptedGenerator{title: "Short Greeting"}, session)

	// No messages yet: rename has nothing to summarize.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/sessions/s1/rename", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty session rename status = %d", recorder.Code)
	}
	var envelope response.APIResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil || envelope.Code != response.CodeNoMessages {
		t.Fatalf("body = %s", recorder.Body.String())
	}

	messageStore.Create(&model.Message{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()})

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/sessions/s1/rename", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "Short Greeting") {
		t.Fatalf("rename response missing new title: %s", recorder.Body.String())
	}
}

func TestGetSessionMessagesNotFoundForForeignSession(t *testing.T) {
	router, _ := newTestRouter(t, "u2", &scriptedGenerator{}, &model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now(),
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/sessions/s1/messages", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}
