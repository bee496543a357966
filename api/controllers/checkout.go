package controllers

import (
	"context"
	"net/http"

	"github.com/evergreen-market/storefront/api/middleware"
	"github.com/evergreen-market/storefront/api/responses"
	"github.com/evergreen-market/storefront/api/validators"
	checkoutsvc "github.com/evergreen-market/storefront/internal/checkout"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
)

type checkoutOrchestrator interface {
	Begin(ctx context.Context, sessionID string) (*checkoutsvc.BeginResult, error)
	Complete(ctx context.Context, sessionID, checkoutSessionID string) error
	StateFor(sessionID string) (checkoutsvc.State, string)
	Acknowledge(sessionID string)
}

// CheckoutBegin runs one checkout attempt. On success the response carries the
// hosted payment page URL for the browser to redirect to.
func CheckoutBegin(orch checkoutOrchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, orch, logg)
		if !ok {
			return
		}

		result, err := orch.Begin(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutState reports the session's machine state and any failure message.
func CheckoutState(orch checkoutOrchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, orch, logg)
		if !ok {
			return
		}

		state, message := orch.StateFor(sessionID)
		responses.WriteSuccess(w, checkoutStateResponse{
			State:   string(state),
			Message: message,
		})
	}
}

// CheckoutAcknowledge dismisses a failed attempt so a new one may start.
func CheckoutAcknowledge(orch checkoutOrchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, orch, logg)
		if !ok {
			return
		}

		orch.Acknowledge(sessionID)
		state, _ := orch.StateFor(sessionID)
		responses.WriteSuccess(w, checkoutStateResponse{State: string(state)})
	}
}

// CheckoutComplete is called by the payment-success return page. The cart is
// cleared only when the processor confirms payment.
func CheckoutComplete(orch checkoutOrchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, orch, logg)
		if !ok {
			return
		}

		var payload completeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := orch.Complete(r.Context(), sessionID, payload.CheckoutSessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, _ := orch.StateFor(sessionID)
		responses.WriteSuccess(w, checkoutStateResponse{State: string(state)})
	}
}

func requireSession(w http.ResponseWriter, r *http.Request, orch checkoutOrchestrator, logg *logger.Logger) (string, bool) {
	if orch == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
		return "", false
	}
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "no shopper session"))
		return "", false
	}
	return sessionID, true
}

type completeRequest struct {
	CheckoutSessionID string `json:"checkout_session_id" validate:"required"`
}

type checkoutStateResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}
