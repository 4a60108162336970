package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// MessageHandler manages the message ledger endpoints.
type MessageHandler struct {
	convos   repositories.ConversationRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(convos repositories.ConversationRepository, messages repositories.MessageRepository, users repositories.UserRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{convos: convos, messages: messages, users: users, hub: hub, audit: audit}
}

// PostMessage appends a message. The insert, the conversation's last-message
// bump and the typing-indicator clear commit as one transaction.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content required"})
		return
	}

	if _, err := h.convos.Get(c.Request.Context(), conversationID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), conversationID, me.ID, req.Content)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	view := models.MessageView{Message: msg, Sender: &me, Reactions: []models.ReactionGroup{}}
	h.hub.BroadcastMessage(conversationID, view)
	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, view)
}

// ListMessages returns the full conversation history in ascending order,
// each message enriched with its sender and merged reactions.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	reactionRows, err := h.messages.ListReactions(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	rowsByMessage := map[int][]models.ReactionRow{}
	for _, row := range reactionRows {
		rowsByMessage[row.MessageID] = append(rowsByMessage[row.MessageID], row)
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	users, err := h.users.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	userByID := make(map[int]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := models.MessageView{Message: m, Reactions: groupReactions(rowsByMessage[m.ID])}
		if sender, ok := userByID[m.SenderID]; ok {
			view.Sender = &sender
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// DeleteMessage soft-deletes a message. Only the author may delete; the
// content stays stored and must be rendered as withheld.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.SenderID != me.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		return
	}

	if err := h.messages.SoftDeleteMessage(c.Request.Context(), messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	h.hub.BroadcastDeletion(msg.ConversationID, messageID)
	h.emitAudit(c, "INFO", "Message deleted")
	c.Status(http.StatusNoContent)
}

// ToggleReaction adds the caller's reaction with the given emoji, or removes
// it if already present. No emoji allow-list is enforced here.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}

	if err := h.messages.ToggleReaction(c.Request.Context(), messageID, me.ID, req.Emoji); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not toggle reaction"})
		return
	}

	rows, err := h.messages.ListMessageReactions(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	groups := groupReactions(rows)

	h.hub.BroadcastReaction(msg.ConversationID, messageID, groups)
	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "reactions": groups})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// groupReactions merges reaction rows into per-emoji groups, first-seen
// emoji order, reactor order preserved. An emoji with no reactors has no
// rows, so empty groups cannot occur.
func groupReactions(rows []models.ReactionRow) []models.ReactionGroup {
	groups := []models.ReactionGroup{}
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.Emoji]
		if !ok {
			i = len(groups)
			index[row.Emoji] = i
			groups = append(groups, models.ReactionGroup{Emoji: row.Emoji})
		}
		groups[i].UserIDs = append(groups[i].UserIDs, row.UserID)
	}
	return groups
}
