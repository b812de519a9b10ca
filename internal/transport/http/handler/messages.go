package handler

import (
	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/transport/http/response"
)

type MessageHandler struct {
	messageService      *app.MessageService
	notificationService *app.NotificationService
}

type SendDirectMessageRequest struct {
	RecipientID uint   `json:"recipient_id" binding:"required,gt=0"`
	ClaimID     *uint  `json:"claim_id" binding:"omitempty,gt=0"`
	Body        string `json:"body" binding:"required,max=5000"`
}

func NewMessageHandler(messageService *app.MessageService, notificationService *app.NotificationService) *MessageHandler {
	return &MessageHandler{messageService: messageService, notificationService: notificationService}
}

func (h *MessageHandler) Send(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req SendDirectMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messageService.Send(p.UserID, app.SendInput{
		RecipientID: req.RecipientID,
		ClaimID:     req.ClaimID,
		Body:        req.Body,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, msg)
}

func (h *MessageHandler) Threads(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	threads, err := h.messageService.Threads(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, threads)
}

func (h *MessageHandler) Conversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	counterpart, ok := idParam(c, "userID")
	if !ok {
		return
	}
	messages, err := h.messageService.Conversation(p.UserID, counterpart, queryInt(c, "page", 1), queryInt(c, "size", 50))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, messages)
}

func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	counterpart, ok := idParam(c, "userID")
	if !ok {
		return
	}
	n, err := h.messageService.MarkRead(p.UserID, counterpart)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"marked": n})
}

func (h *MessageHandler) ListNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, err := h.notificationService.List(p.UserID, queryBool(c, "unread"), queryInt(c, "page", 1), queryInt(c, "size", 20))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, page)
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.notificationService.UnreadCount(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"unread": n})
}

func (h *MessageHandler) MarkNotificationRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(p.UserID, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

func (h *MessageHandler) MarkAllNotificationsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.notificationService.MarkAllRead(p.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"marked": n})
}
