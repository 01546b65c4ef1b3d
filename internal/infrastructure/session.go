package infrastructure

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// defaultCookieName is used when a bare cookie value is supplied without a
// name. Niagara stations issue their session token as JSESSIONID.
const defaultCookieName = "JSESSIONID"

// StaticCookieProvider yields a fixed cookie set for every district. It
// backs the CLI --cookie flag, where the operator pastes a session obtained
// out of band.
type StaticCookieProvider struct {
	cookies map[string]string
}

// NewStaticCookieProvider parses a cookie string of the form
// "name=value; name2=value2". A bare value with no '=' is treated as the
// JSESSIONID value.
func NewStaticCookieProvider(raw string) (*StaticCookieProvider, error) {
	cookies, err := parseCookieString(raw)
	if err != nil {
		return nil, err
	}
	return &StaticCookieProvider{cookies: cookies}, nil
}

// Cookies implements domain.SessionProvider.
func (p *StaticCookieProvider) Cookies(_ context.Context, _ string) (map[string]string, error) {
	return p.cookies, nil
}

// EnvCookieProvider reads the session cookie from the environment:
// {DISTRICT}_SESSION first, then NIAGARA_SESSION.
type EnvCookieProvider struct{}

// Cookies implements domain.SessionProvider.
func (p *EnvCookieProvider) Cookies(_ context.Context, district string) (map[string]string, error) {
	district = strings.ToUpper(district)

	raw := os.Getenv(district + "_SESSION")
	if raw == "" {
		raw = os.Getenv("NIAGARA_SESSION")
	}
	if raw == "" {
		return nil, fmt.Errorf("no session cookie in environment for %s (set %s_SESSION or NIAGARA_SESSION)", district, district)
	}

	return parseCookieString(raw)
}

func parseCookieString(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty cookie string")
	}

	cookies := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			cookies[defaultCookieName] = part
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("malformed cookie pair %q", part)
		}
		cookies[name] = strings.TrimSpace(value)
	}

	return cookies, nil
}
