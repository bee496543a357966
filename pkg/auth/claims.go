package auth

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the payload carried by a storefront session token.
// The jti doubles as the session identifier keying the cart mirror and the
// cached backend credential.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionID returns the token's jti.
func (c *SessionClaims) SessionID() string {
	if c == nil {
		return ""
	}
	return c.ID
}
