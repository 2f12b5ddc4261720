package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"geminichat/internal/app"
	"geminichat/internal/content"
	"geminichat/internal/stream"
	"geminichat/internal/transport/http/middleware"
	"geminichat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService  *app.ChatService
	titleService *app.TitleService
}

type SubmitTurnRequest struct {
	SessionID string               `json:"sessionId"`
	Messages  []TurnMessagePayload `json:"messages"`
	Message   string               `json:"message"`
}

type TurnMessagePayload struct {
	ID          string                      `json:"id"`
	Role        string                      `json:"role"`
	Content     string                      `json:"content"`
	Attachments []content.AttachmentPayload `json:"attachments"`
}

func NewChatHandler(chatService *app.ChatService, titleService *app.TitleService) *ChatHandler {
	return &ChatHandler{chatService: chatService, titleService: titleService}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	session, err := h.chatService.CreateSession(userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		}
		return
	}

	response.OK(c, sessions)
}

func (h *ChatHandler) GetSessionMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID := c.Param("id")
	messages, err := h.chatService.GetSessionMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get messages failed")
		}
		return
	}

	response.OK(c, messages)
}

func (h *ChatHandler) RenameSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID := c.Param("id")
	summary, err := h.titleService.AutoRename(c.Request.Context(), sessionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrRenameSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		case errors.Is(err, app.ErrRenameNoMessages):
			response.Error(c, http.StatusBadRequest, response.CodeNoMessages, err.Error())
		case errors.Is(err, app.ErrLLMConfig):
			response.Error(c, http.StatusServiceUnavailable, response.CodeLLMUnavailable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "rename session failed")
		}
		return
	}

	response.OK(c, summary)
}

// SubmitTurn streams the assistant reply as line-delimited event frames:
// one `data: {"content":"<char>"}` frame per character and a terminal
// `data: [DONE]`. Precondition failures surface as plain JSON errors
// before any frame is written.
func (h *ChatHandler) SubmitTurn(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SubmitTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	pacer, err := h.chatService.SubmitTurn(c.Request.Context(), app.SubmitTurnInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Messages:  toTurnMessages(req.Messages),
		Message:   req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		case errors.Is(err, app.ErrLLMConfig):
			response.Error(c, http.StatusServiceUnavailable, response.CodeLLMUnavailable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "submit turn failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		pacer.Cancel()
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	streamErr := pacer.Run(c.Request.Context(), func(frame stream.Frame) error {
		if frame.Done {
			if _, writeErr := c.Writer.Write([]byte("data: [DONE]\n\n")); writeErr != nil {
				return writeErr
			}
			flusher.Flush()
			return nil
		}

		payload, marshalErr := json.Marshal(gin.H{"content": frame.Content})
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if streamErr != nil {
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(streamErr.Error()) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
	}
}

func toTurnMessages(payloads []TurnMessagePayload) []app.TurnMessage {
	if len(payloads) == 0 {
		return nil
	}
	messages := make([]app.TurnMessage, 0, len(payloads))
	for _, payload := range payloads {
		messages = append(messages, app.TurnMessage{
			ID:          payload.ID,
			Role:        payload.Role,
			Content:     payload.Content,
			Attachments: payload.Attachments,
		})
	}
	return messages
}

func getUserIDFromContext(c *gin.Context) (string, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := userIDAny.(string)
	return userID, ok && userID != ""
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
