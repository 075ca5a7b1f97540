package agent

import "context"

type sessionIDKey struct{}

// WithSessionID tags a context with the session a turn belongs to. The
// runtime applies it before executing tools, so tools that act on the
// session (scheduling, history) can find it.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session ID the runtime tagged, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
