package domain

import "context"

// SessionProvider yields an authenticated cookie set for a district. The
// engine only depends on this abstraction; concrete providers (static
// cookie string, environment lookup, driven-browser login) are injected by
// the entry point.
type SessionProvider interface {
	Cookies(ctx context.Context, district string) (map[string]string, error)
}
