package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evergreen-market/storefront/api/middleware"
	cartsvc "github.com/evergreen-market/storefront/internal/cart"
	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/types"
	redislib "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type stubRemoteCart struct {
	items   []commerce.LineItem
	addItem *commerce.LineItem
	addErr  error
}

func (s *stubRemoteCart) FetchCart(ctx context.Context, token string) ([]commerce.LineItem, error) {
	return s.items, nil
}

func (s *stubRemoteCart) AddItem(ctx context.Context, token, productID string, quantity int) (*commerce.LineItem, error) {
	return s.addItem, s.addErr
}

func (s *stubRemoteCart) UpdateItem(ctx context.Context, token, itemKey string, quantity int) (*commerce.LineItem, error) {
	return nil, nil
}

func (s *stubRemoteCart) RemoveItem(ctx context.Context, token, itemKey string) error {
	return nil
}

func (s *stubRemoteCart) ClearCart(ctx context.Context, token string) error {
	return nil
}

type noopStore struct{}

func (noopStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}

func (noopStore) Get(ctx context.Context, key string) (string, error) {
	return "", redislib.Nil
}

func (noopStore) Del(ctx context.Context, keys ...string) error { return nil }

type noopKeyer struct{}

func (noopKeyer) CartKey(sessionID string) string { return "cart:" + sessionID }

func newControllerRegistry(t *testing.T, remote *stubRemoteCart) *cartsvc.Registry {
	t.Helper()
	mirror, err := cartsvc.NewMirror(noopStore{}, noopKeyer{}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}
	registry, err := cartsvc.NewRegistry(cartsvc.RegistryParams{Remote: remote, Mirror: mirror})
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	return registry
}

func sessionRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithSessionID(req.Context(), "session-1"))
}

func TestCartGetReturnsSnapshot(t *testing.T) {
	t.Parallel()

	remote := &stubRemoteCart{items: []commerce.LineItem{{
		ItemKey:   "a",
		ProductID: "p1",
		Title:     "Hoodie",
		UnitPrice: decimal.RequireFromString("25.00"),
		Quantity:  5,
	}}}
	handler := CartGet(newControllerRegistry(t, remote), nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, sessionRequest(http.MethodGet, "/api/v1/cart", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartSnapshot `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ItemCount != 5 {
		t.Fatalf("unexpected item count: %d", envelope.Data.ItemCount)
	}
	if envelope.Data.TotalPrice != "125.00" {
		t.Fatalf("unexpected total: %s", envelope.Data.TotalPrice)
	}
	if !envelope.Data.Confirm["remove_item"] || !envelope.Data.Confirm["clear"] {
		t.Fatalf("destructive operations must ask for confirmation: %+v", envelope.Data.Confirm)
	}
}

func TestCartGetWithoutSession(t *testing.T) {
	t.Parallel()

	handler := CartGet(newControllerRegistry(t, &stubRemoteCart{}), nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemSuccessCarriesNotice(t *testing.T) {
	t.Parallel()

	confirmed := commerce.LineItem{
		ItemKey:   "a",
		ProductID: "p1",
		Title:     "Hoodie",
		UnitPrice: decimal.RequireFromString("25.00"),
		Quantity:  1,
	}
	remote := &stubRemoteCart{addItem: &confirmed}
	handler := CartAddItem(newControllerRegistry(t, remote), nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","title":"Hoodie"}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data   cartSnapshot  `json:"data"`
		Notice *types.Notice `json:"notice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Notice == nil || envelope.Notice.Level != types.NoticeSuccess {
		t.Fatalf("expected success notice, got %+v", envelope.Notice)
	}
	if envelope.Data.ItemCount != 1 {
		t.Fatalf("unexpected item count: %d", envelope.Data.ItemCount)
	}
}

func TestCartAddItemRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	handler := CartAddItem(newControllerRegistry(t, &stubRemoteCart{}), nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","bogus":true}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
