package controllers

import (
	"context"
	"net/http"

	"github.com/evergreen-market/storefront/api/middleware"
	"github.com/evergreen-market/storefront/api/responses"
	"github.com/evergreen-market/storefront/api/validators"
	authsvc "github.com/evergreen-market/storefront/internal/auth"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
)

type identityBridge interface {
	Exchange(ctx context.Context, identityToken string) (*authsvc.Session, error)
	SignOut(ctx context.Context, sessionID string) error
}

type sessionDropper interface {
	Drop(ctx context.Context, sessionID string)
}

// AuthSignIn trades an external identity token for a storefront session.
func AuthSignIn(bridge identityBridge, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bridge == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth bridge unavailable"))
			return
		}

		var payload signInRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := bridge.Exchange(r.Context(), payload.IdentityToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, signInResponse{
			SessionToken: session.SessionToken,
			SessionID:    session.SessionID,
			UserID:       session.UserID,
		})
	}
}

// AuthSignOut invalidates the cached identity and drops the session's cart
// manager. The browser discards the session token itself.
func AuthSignOut(bridge identityBridge, carts sessionDropper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bridge == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth bridge unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
			return
		}

		if err := bridge.SignOut(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign out"))
			return
		}
		if carts != nil {
			carts.Drop(r.Context(), sessionID)
		}

		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}

type signInRequest struct {
	IdentityToken string `json:"identity_token" validate:"required"`
}

type signInResponse struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
}
