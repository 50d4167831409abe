package session

import (
	"net/http"
	"strings"
)

// TokenQueryParam is the query parameter carrying a session token for clients
// that cannot set cookies or headers on a websocket upgrade.
const TokenQueryParam = "session"

// TokenFromRequest extracts the session token from r. The cookie named
// cookieName takes precedence, then an "Authorization: Bearer" header, then
// the session query parameter.
//
// Postcondition: Returns "" when no carrier holds a token.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}
