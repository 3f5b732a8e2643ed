package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// caller is who Auth found in the bearer token. Values stay raw so a
// malformed id or role reads back as "anonymous" rather than failing.
type caller struct {
	userID string
	role   string
}

type callerKey struct{}

func callerOf(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, c caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	c := callerOf(ctx)
	c.userID = userID
	return withCaller(ctx, c)
}

func WithRole(ctx context.Context, role string) context.Context {
	c := callerOf(ctx)
	c.role = role
	return withCaller(ctx, c)
}

// UserIDFromContext is the raw subject, "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	return callerOf(ctx).userID
}

// UserUUIDFromContext is uuid.Nil when the request is anonymous or the id
// is malformed.
func UserUUIDFromContext(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(callerOf(ctx).userID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ActorRoleFromContext is "" unless the caller carries a known role.
func ActorRoleFromContext(ctx context.Context) enums.Role {
	role, err := enums.ParseRole(callerOf(ctx).role)
	if err != nil {
		return ""
	}
	return role
}
