package ginserver

import (
	"log/slog"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/app/access"
)

// Authentication happens upstream; the gateway forwards the resolved
// account in these headers.
const (
	AccountIDHeader      = "X-Account-ID"
	AccountRoleHeader    = "X-Account-Role"
	IdempotencyKeyHeader = "Idempotency-Key"
)

const principalContextKey = "staykeeper.principal"

type PrincipalMiddleware struct {
	Logger *slog.Logger
}

// Handle attaches the forwarded actor to the request. Requests without
// usable headers continue anonymously and are rejected by the command
// pipeline where an actor is required.
func (m PrincipalMiddleware) Handle(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(AccountIDHeader))
	rawRole := c.GetHeader(AccountRoleHeader)
	if id == "" || rawRole == "" {
		c.Next()
		return
	}
	role, ok := access.ParseRole(rawRole)
	if !ok {
		if m.Logger != nil {
			m.Logger.Debug("unknown account role", "role", rawRole, "account_id", id)
		}
		c.Next()
		return
	}
	actor := access.Actor{AccountID: id, Role: role}
	setActor(c, actor)
	c.Request = c.Request.WithContext(access.ContextWithActor(c.Request.Context(), actor))
	c.Next()
}

func setActor(c *gin.Context, actor access.Actor) {
	c.Set(principalContextKey, actor)
}

// currentActor returns the zero Actor for anonymous requests.
func currentActor(c *gin.Context) access.Actor {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return access.Actor{}
	}
	actor, _ := val.(access.Actor)
	return actor
}
