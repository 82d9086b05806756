package middleware

import "context"

type identityKey struct{}

// identity is what the auth middleware proved about the caller. Both fields
// are raw claim strings; controllers parse them into an orders.Actor.
type identity struct {
	userID string
	role   string
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// WithIdentity injects the caller into the context. Tests use it to skip
// token minting.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, identity{userID: userID, role: role})
}
