package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
)

const (
	ctxActor = "ledger_actor"

	// ActorHeader carries the actor id when no token issuer is configured.
	ActorHeader = "X-Actor"
)

// RequireActor returns a Gin middleware that resolves the calling actor.
//
// With a TokenIssuer it enforces a valid Bearer token and uses its subject.
// With a nil issuer (development mode) it trusts the X-Actor header.
// Either way the actor is normalized and injected under the "ledger_actor" key.
func RequireActor(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var actor string
		if tokens == nil {
			actor = access.NormalizeActor(c.GetHeader(ActorHeader))
			if actor == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": ActorHeader + " header required",
				})
				return
			}
		} else {
			authHeader := c.GetHeader("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Bearer token required",
				})
				return
			}
			claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid token: " + err.Error(),
				})
				return
			}
			actor = access.NormalizeActor(claims.Actor())
		}

		c.Set(ctxActor, actor)
		c.Next()
	}
}

// ActorFromCtx retrieves the actor injected by RequireActor.
func ActorFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxActor)
	s, _ := v.(string)
	return s
}
