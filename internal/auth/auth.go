// Package auth attaches the user's session credential to outgoing requests.
package auth

import (
	"context"
	"net/http"
)

// CookieName is the session cookie understood by the platform backend.
const CookieName = "better-auth.session_token"

// TokenSource supplies the current session token. An empty token with a nil
// error means the user is signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a TokenSource that always returns the same token.
type Static string

func (s Static) Token(context.Context) (string, error) { return string(s), nil }

// Apply sets the session cookie on req when token is non-empty.
func Apply(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
}

// Authorize resolves a token from src and applies it to req. A nil src leaves
// the request anonymous.
func Authorize(req *http.Request, src TokenSource) error {
	if src == nil {
		return nil
	}
	token, err := src.Token(req.Context())
	if err != nil {
		return err
	}
	Apply(req, token)
	return nil
}

// FromRequest returns the session token carried by r, or "".
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
