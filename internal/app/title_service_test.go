package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"geminichat/internal/ai"
	"geminichat/internal/content"
	"geminichat/internal/model"
)

func TestAutoRenameHappyPath(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	lastActivity := time.Now().Add(-time.Minute)
	sessionStore := newFakeSessionStore(&model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: created,
	})
	sessionStore.lastActivity = lastActivity
	messageStore := &fakeMessageStore{messages: []model.Message{
		{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: "What is the capital of France?", CreatedAt: created},
		{ID: "m2", SessionID: "s1", Role: model.RoleAssistant, Content: "Paris.", CreatedAt: created.Add(time.Second)},
	}}
	generator := &fakeGenerator{generateReply: `"French Capitals"`}
	service := NewTitleService(sessionStore, messageStore, generator, testLLMConfig())

	summary, err := service.AutoRename(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("AutoRename failed: %v", err)
	}
	if summary.Title != "French Capitals" {
		t.Fatalf("title = %q, want quotes stripped", summary.Title)
	}
	if !summary.UpdatedAt.Equal(lastActivity) {
		t.Fatalf("UpdatedAt = %v, want latest activity %v", summary.UpdatedAt, lastActivity)
	}
	if len(sessionStore.titleUpdates) != 1 || sessionStore.titleUpdates[0] != "French Capitals" {
		t.Fatalf("stored title updates: %+v", sessionStore.titleUpdates)
	}

	if len(generator.prompts) != 1 {
		t.Fatalf("expected one titling prompt, got %d", len(generator.prompts))
	}
	prompt := generator.prompts[0]
	if !strings.Contains(prompt, "user: What is the capital of France?") {
		t.Fatalf("transcript missing user line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "assistant: Paris.") {
		t.Fatalf("transcript missing assistant line:\n%s", prompt)
	}
}

func TestAutoRenameTranscriptAnnotatesImages(t *testing.T) {
	sessionStore := newFakeSessionStore(&model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now(),
	})
	imageOnly := content.Encode("", []content.Attachment{
		{ID: "a1", Data: "AAAA", MimeType: "image/png"},
	})
	messageStore := &fakeMessageStore{messages: []model.Message{
		{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: imageOnly},
	}}
	generator := &fakeGenerator{generateReply: "Image Question"}
	service := NewTitleService(sessionStore, messageStore, generator, testLLMConfig())

	if _, err := service.AutoRename(context.Background(), "s1", "u1"); err != nil {
		t.Fatalf("AutoRename failed: %v", err)
	}

	prompt := generator.prompts[0]
	if !strings.Contains(prompt, imageOnlyPlaceholder) {
		t.Fatalf("image-only turn should use placeholder text:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[1 images]") {
		t.Fatalf("transcript should annotate image count:\n%s", prompt)
	}
}

func TestAutoRenameErrors(t *testing.T) {
	session := &model.Session{ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now()}

	t.Run("unknown session", func(t *testing.T) {
		service := NewTitleService(newFakeSessionStore(), &fakeMessageStore{}, &fakeGenerator{}, testLLMConfig())
		if _, err := service.AutoRename(context.Background(), "missing", ""); !errors.Is(err, ErrRenameSessionNotFound) {
			t.Fatalf("err = %v, want ErrRenameSessionNotFound", err)
		}
	})

	t.Run("foreign session", func(t *testing.T) {
		service := NewTitleService(newFakeSessionStore(session), &fakeMessageStore{}, &fakeGenerator{}, testLLMConfig())
		if _, err := service.AutoRename(context.Background(), "s1", "u2"); !errors.Is(err, ErrRenameSessionNotFound) {
			t.Fatalf("err = %v, want ErrRenameSessionNotFound", err)
		}
	})

	t.Run("no messages", func(t *testing.T) {
		service := NewTitleService(newFakeSessionStore(session), &fakeMessageStore{}, &fakeGenerator{}, testLLMConfig())
		if _, err := service.AutoRename(context.Background(), "s1", "u1"); !errors.Is(err, ErrRenameNoMessages) {
			t.Fatalf("err = %v, want ErrRenameNoMessages", err)
		}
	})

	t.Run("missing llm config", func(t *testing.T) {
		messageStore := &fakeMessageStore{messages: []model.Message{
			{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: "hi"},
		}}
		service := NewTitleService(newFakeSessionStore(session), messageStore, &fakeGenerator{}, ai.GenerateConfig{})
		if _, err := service.AutoRename(context.Background(), "s1", "u1"); !errors.Is(err, ErrLLMConfig) {
			t.Fatalf("err = %v, want ErrLLMConfig", err)
		}
	})

	t.Run("generator failure", func(t *testing.T) {
		messageStore := &fakeMessageStore{messages: []model.Message{
			{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: "hi"},
		}}
		generator := &fakeGenerator{generateErr: errors.New("upstream down")}
		store := newFakeSessionStore(session)
		service := NewTitleService(store, messageStore, generator, testLLMConfig())
		if _, err := service.AutoRename(context.Background(), "s1", "u1"); err == nil {
			t.Fatal("expected generate failure to surface")
		}
		if len(store.titleUpdates) != 0 {
			t.Fatal("failed generation must not touch the title")
		}
	})
}

func TestAutoRenameSkipsOwnershipWhenUserBlank(t *testing.T) {
	sessionStore := newFakeSessionStore(&model.Session{
		ID: "s1", UserID: "u1", Title: model.DefaultSessionTitle, CreatedAt: time.Now(),
	})
	messageStore := &fakeMessageStore{messages: []model.Message{
		{ID: "m1", SessionID: "s1", Role: model.RoleUser, Content: "hi"},
	}}
	generator := &fakeGenerator{generateReply: "Greetings"}
	service := NewTitleService(sessionStore, messageStore, generator, testLLMConfig())

	summary, err := service.AutoRename(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("AutoRename without user scope failed: %v", err)
	}
	if summary.Title != "Greetings" {
		t.Fatalf("title = %q", summary.Title)
	}
}

func TestSanitizeTitle(t *testing.T) {
	fallbackPrefix := "Conversation "
	long := strings.Repeat("é", 60)

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Weather Chat", "Weather Chat"},
		{"surrounding whitespace", "  Weather Chat \n", "Weather Chat"},
		{"double quotes", `"Weather Chat"`, "Weather Chat"},
		{"single quotes", "'Weather Chat'", "Weather Chat"},
		{"exactly three runes", "abc", "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeTitle(tc.raw); got != tc.want {
				t.Fatalf("sanitizeTitle(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}

	t.Run("too short falls back to dated default", func(t *testing.T) {
		for _, raw := range []string{"", "  ", `"a"`, "ab"} {
			got := sanitizeTitle(raw)
			if !strings.HasPrefix(got, fallbackPrefix) {
				t.Fatalf("sanitizeTitle(%q) = %q, want %q prefix", raw, got, fallbackPrefix)
			}
		}
	})

	t.Run("truncates to rune limit", func(t *testing.T) {
		got := sanitizeTitle(long)
		if runes := []rune(got); len(runes) != maxTitleLength {
			t.Fatalf("truncated length = %d runes, want %d", len(runes), maxTitleLength)
		}
	})
}
