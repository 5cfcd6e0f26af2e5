package recovery

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's address to ctx. Initiate keys its
// attempt limiter on it, and audit events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
