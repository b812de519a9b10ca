package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adjusterhub/internal/app"
	"adjusterhub/internal/apperr"
	"adjusterhub/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type SendMessageRequest struct {
	SessionID uint   `json:"session_id" binding:"required,gt=0"`
	Content   string `json:"content" binding:"required,max=8000"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.chatService.CreateSession(p.UserID, req.Title)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	sessions, err := h.chatService.ListSessions(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.chatService.DeleteSession(c.Request.Context(), p.UserID, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_session_id": id})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    p.UserID,
		SessionID: req.SessionID,
		Content:   req.Content,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// StreamMessage relays completion chunks as server-sent events, ending with a done or
// error event.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Fail(c, apperr.New(apperr.KindInternal, "stream not supported"))
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	full, err := h.chatService.StreamMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    p.UserID,
		SessionID: req.SessionID,
		Content:   req.Content,
	}, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		classified := apperr.Classify(err)
		response.Logger(c).Warn("chat stream failed", zap.Error(err))
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(classified.Message)))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(full) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	history, err := h.chatService.GetHistory(c.Request.Context(), p.UserID, id, queryInt(c, "limit", 100))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, history)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
