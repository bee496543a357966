package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/metrics"
	"github.com/evergreen-market/storefront/pkg/pagination"
)

const errorBodyReadLimit int64 = 2048

var errBaseURLRequired = errors.New("commerce base url is required")

// Client talks to the remote commerce service that owns the authoritative
// cart, catalog, order, and identity-exchange endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.StorefrontMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics wires request duration observation.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds the commerce client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client, nil
}

// FetchCart loads the authoritative cart for the credential's session.
func (c *Client) FetchCart(ctx context.Context, token string) ([]LineItem, error) {
	var resp struct {
		Items map[string]json.RawMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/cart", token, nil, &resp, "fetch_cart"); err != nil {
		return nil, err
	}
	items, err := mapItems(resp.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "map cart items")
	}
	return items, nil
}

// AddItem adds a product to the remote cart and returns the confirmed line.
func (c *Client) AddItem(ctx context.Context, token, productID string, quantity int) (*LineItem, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	body := map[string]any{"id": productID, "quantity": quantity}
	var resp struct {
		Item json.RawMessage `json:"item"`
	}
	if err := c.do(ctx, http.MethodPost, "/cart/add-item", token, body, &resp, "add_item"); err != nil {
		return nil, err
	}
	return decodeConfirmedItem(resp.Item)
}

// UpdateItem sets a line's quantity and returns the confirmed line.
func (c *Client) UpdateItem(ctx context.Context, token, itemKey string, quantity int) (*LineItem, error) {
	if strings.TrimSpace(itemKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item key is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	body := map[string]any{"quantity": quantity}
	var resp struct {
		Item json.RawMessage `json:"item"`
	}
	path := "/cart/item/" + url.PathEscape(itemKey)
	if err := c.do(ctx, http.MethodPut, path, token, body, &resp, "update_item"); err != nil {
		return nil, err
	}
	return decodeConfirmedItem(resp.Item)
}

// RemoveItem deletes a line from the remote cart.
func (c *Client) RemoveItem(ctx context.Context, token, itemKey string) error {
	if strings.TrimSpace(itemKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item key is required")
	}
	path := "/cart/item/" + url.PathEscape(itemKey)
	return c.do(ctx, http.MethodDelete, path, token, nil, nil, "remove_item")
}

// ClearCart empties the remote cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/cart/clear", token, struct{}{}, nil, "clear_cart")
}

// ExchangeToken trades an external identity token for a backend credential.
func (c *Client) ExchangeToken(ctx context.Context, identityToken string) (*Identity, error) {
	if strings.TrimSpace(identityToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity token is required")
	}
	var identity Identity
	if err := c.do(ctx, http.MethodPost, "/auth/exchange", identityToken, struct{}{}, &identity, "exchange_token"); err != nil {
		return nil, err
	}
	if identity.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "token exchange returned no credential")
	}
	return &identity, nil
}

// CreateCheckoutSessionInput is the payload for hosted session creation.
type CreateCheckoutSessionInput struct {
	Lines         []CheckoutLine `json:"line_items"`
	CustomerEmail string         `json:"customer_email,omitempty"`
}

// CreateCheckoutSession creates a hosted checkout session for the cart lines.
func (c *Client) CreateCheckoutSession(ctx context.Context, token string, input CreateCheckoutSessionInput) (*CheckoutSession, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one line item")
	}
	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout-session", token, input, &session, "create_checkout_session"); err != nil {
		return nil, err
	}
	if session.RedirectURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "checkout session has no redirect url")
	}
	return &session, nil
}

// CheckoutSessionStatus queries the payment state of a session. The return
// page calls this before the local cart is cleared.
func (c *Client) CheckoutSessionStatus(ctx context.Context, token, sessionID string) (*SessionStatus, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	var status SessionStatus
	path := "/checkout-session/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &status, "checkout_session_status"); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListProducts pages through the remote catalog.
func (c *Client) ListProducts(ctx context.Context, params pagination.Params) (*ProductPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pagination.NormalizeLimit(params.Limit)))
	if cursor := strings.TrimSpace(params.Cursor); cursor != "" {
		query.Set("cursor", cursor)
	}
	var page ProductPage
	if err := c.do(ctx, http.MethodGet, "/products?"+query.Encode(), "", nil, &page, "list_products"); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct fetches one catalog entry.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var product Product
	path := "/products/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &product, "get_product"); err != nil {
		return nil, err
	}
	return &product, nil
}

// ListOrders returns the shopper's committed orders.
func (c *Client) ListOrders(ctx context.Context, token string, params pagination.Params) ([]Order, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pagination.NormalizeLimit(params.Limit)))
	if cursor := strings.TrimSpace(params.Cursor); cursor != "" {
		query.Set("cursor", cursor)
	}
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders?"+query.Encode(), token, nil, &resp, "list_orders"); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, dest any, endpoint string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveRemote(endpoint, time.Since(start))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s", endpoint))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), cause, fmt.Sprintf("%s failed", endpoint))
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", endpoint))
	}
	return nil
}

func decodeConfirmedItem(raw json.RawMessage) (*LineItem, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "response contains no item")
	}
	wire, err := decodeWireItem(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode item")
	}
	item, err := wire.toLineItem()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "map item")
	}
	return &item, nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
