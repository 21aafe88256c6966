package shared

import (
	"context"

	"github.com/google/uuid"
)

type sessionContextKey struct{}

type actorContextKey struct{}

// Actor is the authenticated staff member behind a request.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor, falling back to the session when no
// actor was attached explicitly.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if actor, ok := ctx.Value(actorContextKey{}).(Actor); ok {
		return actor, true
	}
	sess := SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return Actor{}, false
	}
	id, err := uuid.Parse(sess.User())
	if err != nil {
		return Actor{}, false
	}
	return Actor{UserID: id, Role: Role(sess.Role())}, true
}

// ActorID returns the actor's id or uuid.Nil for anonymous calls.
func ActorID(ctx context.Context) uuid.UUID {
	actor, _ := ActorFromContext(ctx)
	return actor.UserID
}
