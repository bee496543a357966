package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	pkgauth "github.com/evergreen-market/storefront/pkg/auth"
	"github.com/evergreen-market/storefront/pkg/config"
	"github.com/evergreen-market/storefront/pkg/logger"
)

const sessionCookieName = "sf_session"

type sessionCtxKey struct{}
type userCtxKey struct{}

// Session resolves the shopper session for every request. A valid session
// JWT wins; otherwise a guest session id is read from (or set as) a cookie
// so anonymous carts work before sign-in.
func Session(jwtCfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token := bearerToken(r); token != "" {
				claims, err := pkgauth.ParseSessionToken(jwtCfg, token)
				if err == nil {
					ctx = context.WithValue(ctx, sessionCtxKey{}, claims.SessionID())
					ctx = context.WithValue(ctx, userCtxKey{}, claims.UserID)
					if logg != nil {
						ctx = logg.WithSessionID(ctx, claims.SessionID())
						ctx = logg.WithUserID(ctx, claims.UserID)
					}
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "reason", err.Error()), "session token rejected, treating as guest")
				}
			}

			sessionID := guestSessionID(w, r)
			ctx = context.WithValue(ctx, sessionCtxKey{}, sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func guestSessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sessionID := pkgauth.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}

// WithSessionID stamps the shopper session id on the context. Exposed for
// handlers under test.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext returns the shopper session id, or empty.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// UserIDFromContext returns the signed-in user id, or empty for guests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey{}).(string); ok {
		return v
	}
	return ""
}
