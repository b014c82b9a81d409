package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/pkg/response"
)

const (
	// ContextAccountID is the key for the account ID in gin context.
	ContextAccountID = "account_id"
	// ContextRole is the key for the role snapshot in gin context.
	ContextRole = "account_role"
)

// SessionValidator resolves a bearer token to a live session.
// Implemented by sessions.Store.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.Session, error)
}

// Session returns a middleware that validates the opaque bearer token and
// sets the bound account and role snapshot in context. Unknown, expired and
// revoked tokens are all rejected the same way.
func Session(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}
		sess, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
		c.Set(ContextAccountID, sess.AccountID)
		c.Set(ContextRole, string(sess.Role))
		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AccountID returns the authenticated account ID from context.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
