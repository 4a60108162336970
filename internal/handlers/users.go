package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// UserHandler manages identity sync and presence endpoints.
type UserHandler struct {
	users repositories.UserRepository
	audit *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{users: users, audit: audit}
}

// SyncUser creates or refreshes the caller's user record on login and marks
// them online. Idempotent; the subject comes from the verified token.
func (h *UserHandler) SyncUser(c *gin.Context) {
	subject := c.GetString("subject")
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	// email may be absent; some identity providers issue subjects without one
	var req struct {
		Name      string  `json:"name" binding:"required"`
		Email     string  `json:"email"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpsertLogin(c.Request.Context(), subject, req.Name, req.Email, req.AvatarURL)
	if err != nil {
		h.emitAudit(c, "ERROR", "user sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sync user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// SetPresence patches the caller's online flag. A caller without a user
// record is a no-op.
func (h *UserHandler) SetPresence(c *gin.Context) {
	var req struct {
		IsOnline *bool `json:"is_online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me, ok := currentUser(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.users.SetPresence(c.Request.Context(), me.ID, *req.IsOnline); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update presence"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the caller's user record, or null when none exists yet.
func (h *UserHandler) Me(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, me)
}

// ListUsers returns every other user, optionally filtered by name.
func (h *UserHandler) ListUsers(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"users": []models.User{}})
		return
	}

	users, err := h.users.ListOthers(c.Request.Context(), me.ID, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser fetches a single user by id.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
