package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/repositories"
)

// TokenVerifier resolves a bearer token to the external subject identifier.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

// AuthMiddleware validates the Authorization header and resolves the caller.
// A valid token whose subject has no user record yet passes through with only
// the subject set; handlers decide whether that degrades to an empty result
// or fails the operation.
func AuthMiddleware(verifier TokenVerifier, users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		subject, err := verifier.Subject(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("subject", subject)

		user, err := users.GetByExternalID(c.Request.Context(), subject)
		if err != nil {
			if !errors.Is(err, repositories.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
				return
			}
			c.Next()
			return
		}

		c.Set("userID", user.ID)
		c.Set("currentUser", user)
		c.Next()
	}
}
