package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evergreen-market/storefront/api/middleware"
	"github.com/evergreen-market/storefront/api/responses"
	"github.com/evergreen-market/storefront/api/validators"
	cartsvc "github.com/evergreen-market/storefront/internal/cart"
	"github.com/evergreen-market/storefront/pkg/commerce"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
)

type cartRegistry interface {
	Manager(ctx context.Context, sessionID string) (*cartsvc.Manager, error)
}

// CartGet returns the session's cart snapshot with derived totals.
func CartGet(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := sessionManager(w, r, carts, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newCartSnapshot(mgr))
	}
}

// CartAddItem adds a product to the cart. The title travels with the request
// so a failed add can name the item the shopper tried to add.
func CartAddItem(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := sessionManager(w, r, carts, logg)
		if !ok {
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := payload.Quantity
		if quantity == 0 {
			quantity = 1
		}

		notice, err := mgr.AddItem(r.Context(), cartsvc.ProductRef{
			ID:    payload.ProductID,
			Title: payload.Title,
		}, quantity)
		if err != nil {
			responses.WriteErrorNotice(r.Context(), logg, w, err, notice)
			return
		}
		responses.WriteSuccessNotice(w, newCartSnapshot(mgr), notice)
	}
}

// CartUpdateItem sets a line's quantity. Zero removes the line.
func CartUpdateItem(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := sessionManager(w, r, carts, logg)
		if !ok {
			return
		}

		itemKey := chi.URLParam(r, "itemKey")
		if itemKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item key is required"))
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		notice, err := mgr.UpdateQuantity(r.Context(), itemKey, payload.Quantity)
		if err != nil {
			responses.WriteErrorNotice(r.Context(), logg, w, err, notice)
			return
		}
		responses.WriteSuccessNotice(w, newCartSnapshot(mgr), notice)
	}
}

// CartRemoveItem deletes a line from the cart.
func CartRemoveItem(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := sessionManager(w, r, carts, logg)
		if !ok {
			return
		}

		itemKey := chi.URLParam(r, "itemKey")
		if itemKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item key is required"))
			return
		}

		notice, err := mgr.RemoveItem(r.Context(), itemKey)
		if err != nil {
			responses.WriteErrorNotice(r.Context(), logg, w, err, notice)
			return
		}
		responses.WriteSuccessNotice(w, newCartSnapshot(mgr), notice)
	}
}

// CartClear empties the cart.
func CartClear(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := sessionManager(w, r, carts, logg)
		if !ok {
			return
		}

		notice, err := mgr.Clear(r.Context())
		if err != nil {
			responses.WriteErrorNotice(r.Context(), logg, w, err, notice)
			return
		}
		responses.WriteSuccessNotice(w, newCartSnapshot(mgr), notice)
	}
}

func sessionManager(w http.ResponseWriter, r *http.Request, carts cartRegistry, logg *logger.Logger) (*cartsvc.Manager, bool) {
	if carts == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable"))
		return nil, false
	}
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "no shopper session"))
		return nil, false
	}
	mgr, err := carts.Manager(r.Context(), sessionID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart"))
		return nil, false
	}
	return mgr, true
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type cartSnapshot struct {
	Items      []commerce.LineItem `json:"items"`
	ItemCount  int                 `json:"item_count"`
	TotalPrice string              `json:"total_price"`
	Hydrated   bool                `json:"hydrated"`
	Confirm    map[string]bool     `json:"confirm_before"`
}

// newCartSnapshot rereads the derived values so every response reflects the
// collection as of this request.
func newCartSnapshot(mgr *cartsvc.Manager) cartSnapshot {
	return cartSnapshot{
		Items:      mgr.Items(),
		ItemCount:  mgr.ItemCount(),
		TotalPrice: mgr.TotalPrice().StringFixed(2),
		Hydrated:   mgr.Hydrated(),
		Confirm: map[string]bool{
			string(cartsvc.OpRemove): cartsvc.RequiresConfirmation(cartsvc.OpRemove),
			string(cartsvc.OpClear):  cartsvc.RequiresConfirmation(cartsvc.OpClear),
		},
	}
}
