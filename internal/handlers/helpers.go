package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messenger-service/internal/models"
)

const requestIDContextKey = "request_id"

// currentUser returns the caller resolved by the auth middleware. A valid
// token whose subject has no user record yet reports !ok.
func currentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get("currentUser")
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if user, ok := currentUser(c); ok {
		value := user.ExternalID
		return &value
	}
	if subject := c.GetString("subject"); subject != "" {
		value := subject
		return &value
	}
	return nil
}
