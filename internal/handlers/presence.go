package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

// typingWindow is the liveness threshold: a typing record strictly newer
// than now minus this window counts as active.
const typingWindow = 2000 * time.Millisecond

// PresenceHandler manages typing indicators and read receipts.
type PresenceHandler struct {
	presence repositories.PresenceRepository
	users    repositories.UserRepository
	hub      *ws.Hub
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(presence repositories.PresenceRepository, users repositories.UserRepository, hub *ws.Hub) *PresenceHandler {
	return &PresenceHandler{presence: presence, users: users, hub: hub}
}

// SetTyping overwrites the caller's typing record for the conversation.
// Called on every input change; a caller without a user record is a no-op.
func (h *PresenceHandler) SetTyping(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.presence.UpsertTyping(c.Request.Context(), conversationID, me.ID, time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update typing state"})
		return
	}

	h.hub.BroadcastTyping(conversationID, me.ID)
	c.Status(http.StatusNoContent)
}

// GetTypingUsers returns the users typing within the liveness window,
// excluding the caller. Stale records fall out of the filter; nothing
// deletes them.
func (h *PresenceHandler) GetTypingUsers(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	excludeID := 0
	if me, ok := currentUser(c); ok {
		excludeID = me.ID
	}

	indicators, err := h.presence.ListTyping(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load typing state"})
		return
	}

	ids := activeTypers(indicators, time.Now(), excludeID)
	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// MarkAsRead advances the caller's read watermark to now. A caller without a
// user record is a no-op.
func (h *PresenceHandler) MarkAsRead(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	receipt, err := h.presence.UpsertReadReceipt(c.Request.Context(), conversationID, me.ID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update read state"})
		return
	}

	h.hub.BroadcastRead(conversationID, me.ID, receipt.LastReadTime)
	c.Status(http.StatusNoContent)
}

// activeTypers filters indicators to those strictly inside the liveness
// window, excluding the given user. A record exactly window-old is stale.
func activeTypers(indicators []models.TypingIndicator, now time.Time, excludeUserID int) []int {
	cutoff := now.Add(-typingWindow)
	ids := make([]int, 0, len(indicators))
	for _, ind := range indicators {
		if ind.UserID == excludeUserID {
			continue
		}
		if ind.LastTyped.After(cutoff) {
			ids = append(ids, ind.UserID)
		}
	}
	return ids
}
