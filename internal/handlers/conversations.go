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
)

// ConversationHandler manages the conversation directory endpoints.
type ConversationHandler struct {
	convos   repositories.ConversationRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	audit    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convos repositories.ConversationRepository, messages repositories.MessageRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{convos: convos, messages: messages, users: users, audit: audit}
}

// StartDirect returns the existing direct conversation with the other user
// or creates one. The lookup and insert are separate store operations;
// concurrent first contact from both sides may produce a duplicate.
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	var req struct {
		OtherUserID int `json:"other_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OtherUserID == me.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), req.OtherUserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	convo, err := h.convos.FindDirectConversation(c.Request.Context(), me.ID, req.OtherUserID)
	if err != nil {
		if !errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up conversation"})
			return
		}
		convo, err = h.convos.CreateDirect(c.Request.Context(), me.ID, req.OtherUserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": convo.ID})
}

// CreateGroup creates a group conversation from the caller and member ids,
// duplicates collapsed.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	var req struct {
		GroupName string `json:"group_name"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.GroupName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name required"})
		return
	}
	if !hasOtherMember(me.ID, req.MemberIDs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group needs at least two members"})
		return
	}

	convo, err := h.convos.CreateGroup(c.Request.Context(), me.ID, req.GroupName, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"conversation_id": convo.ID})
}

// ListConversations returns the caller's conversations enriched with
// participant records and unread counts, most recent activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"conversations": []models.ConversationSummary{}})
		return
	}

	convos, err := h.convos.ListForUser(c.Request.Context(), me.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	participantsByConvo := make(map[int][]int, len(convos))
	allIDs := make([]int, 0, len(convos)*2)
	seen := map[int]struct{}{}
	for _, convo := range convos {
		ids, err := h.convos.ParticipantIDs(c.Request.Context(), convo.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
			return
		}
		participantsByConvo[convo.ID] = ids
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				allIDs = append(allIDs, id)
			}
		}
	}

	users, err := h.users.BulkUsers(c.Request.Context(), allIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	userByID := make(map[int]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	summaries := make([]models.ConversationSummary, 0, len(convos))
	for _, convo := range convos {
		unread, err := h.messages.CountUnread(c.Request.Context(), convo.ID, me.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
			return
		}
		summaries = append(summaries, models.ConversationSummary{
			Conversation: convo,
			Participants: resolveParticipants(participantsByConvo[convo.ID], userByID),
			UnreadCount:  unread,
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetConversation returns the enriched conversation, or null for a missing id
// so read paths stay simple.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}

	convo, err := h.convos.Get(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusOK, nil)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	ids, err := h.convos.ParticipantIDs(c.Request.Context(), convo.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	userByID := make(map[int]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	c.JSON(http.StatusOK, models.ConversationDetail{
		Conversation: convo,
		Participants: resolveParticipants(ids, userByID),
		Me:           &me,
	})
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// hasOtherMember reports whether the member list names anyone besides the
// caller, which is what "at least two total participants" reduces to.
func hasOtherMember(callerID int, memberIDs []int) bool {
	for _, id := range memberIDs {
		if id != callerID {
			return true
		}
	}
	return false
}

// resolveParticipants maps ids to user records in participant order,
// dropping ids with no record.
func resolveParticipants(ids []int, userByID map[int]models.User) []models.User {
	participants := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := userByID[id]; ok {
			participants = append(participants, user)
		}
	}
	return participants
}
