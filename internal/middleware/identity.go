package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
)

const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	actorContextKey = "actor"
)

// Identity reads the caller from the identity headers set by the upstream
// gateway and rejects requests without a usable one.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := domain.Actor{
			ID:   c.GetHeader(ActorIDHeader),
			Role: domain.Role(c.GetHeader(ActorRoleHeader)),
		}
		if actor.ID == "" || !actor.Role.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid actor identity",
				"code":  "UNAUTHENTICATED",
			})
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Identity.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
