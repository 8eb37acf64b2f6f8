package middleware

import (
	"context"
	"strings"

	"moralduel-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Headers set by the upstream gateway after authenticating the caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

type Actor struct {
	UserID string
	Role   string
}

// ActorContext copies the caller identity headers into the request context.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{
			UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Role:   strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))),
		}
		if actor.Role == "" && actor.UserID != "" {
			actor.Role = "user"
		}

		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireActor rejects requests without a caller identity.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetActor(c.Request.Context()).UserID == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the zero Actor when none was attached.
func GetActor(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
