package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/evergreen-market/storefront/api/middleware"
	"github.com/evergreen-market/storefront/api/responses"
	authsvc "github.com/evergreen-market/storefront/internal/auth"
	"github.com/evergreen-market/storefront/pkg/commerce"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/pagination"
)

type orderLister interface {
	ListOrders(ctx context.Context, token string, params pagination.Params) ([]commerce.Order, error)
}

type credentialSource interface {
	SessionToken(ctx context.Context, sessionID string) (string, error)
}

// OrdersList returns the signed-in shopper's order history. Guests are asked
// to sign in; the remote service keys orders by the backend credential.
func OrdersList(svc orderLister, creds credentialSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || creds == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		token, err := creds.SessionToken(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, authsvc.ErrNoSession) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to view orders"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve session credential"))
			return
		}

		orders, err := svc.ListOrders(r.Context(), token, paginationFromQuery(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": orders})
	}
}
