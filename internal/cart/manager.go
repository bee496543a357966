package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/evergreen-market/storefront/pkg/commerce"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/metrics"
	"github.com/evergreen-market/storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Operation names a cart mutation for notices, metrics, and the
// confirmation capability.
type Operation string

const (
	OpHydrate Operation = "hydrate"
	OpAdd     Operation = "add_item"
	OpUpdate  Operation = "update_quantity"
	OpRemove  Operation = "remove_item"
	OpClear   Operation = "clear"
)

// RequiresConfirmation reports whether the presentation layer should confirm
// the operation before invoking it. The confirmation mechanism is the UI's
// choice.
func RequiresConfirmation(op Operation) bool {
	return op == OpRemove || op == OpClear
}

// ProductRef identifies a product to add plus the display title the UI
// already holds, used for failure notices.
type ProductRef struct {
	ID    string
	Title string
}

type remoteCart interface {
	FetchCart(ctx context.Context, token string) ([]commerce.LineItem, error)
	AddItem(ctx context.Context, token, productID string, quantity int) (*commerce.LineItem, error)
	UpdateItem(ctx context.Context, token, itemKey string, quantity int) (*commerce.LineItem, error)
	RemoveItem(ctx context.Context, token, itemKey string) error
	ClearCart(ctx context.Context, token string) error
}

type credentialSource interface {
	SessionToken(ctx context.Context, sessionID string) (string, error)
}

// Manager owns the in-memory cart for one shopper session. Every mutation is
// confirmed by the remote service before local state changes; the mirror is
// written after each confirmed mutation. Mutations are serialized: one
// in-flight mutation per manager.
type Manager struct {
	sessionID string
	remote    remoteCart
	mirror    *Mirror
	creds     credentialSource
	logg      *logger.Logger
	metrics   *metrics.StorefrontMetrics

	mu       sync.Mutex
	items    []commerce.LineItem
	hydrated bool
	epoch    uint64
}

// ManagerParams collects the dependencies for NewManager.
type ManagerParams struct {
	SessionID string
	Remote    remoteCart
	Mirror    *Mirror
	Creds     credentialSource
	Logger    *logger.Logger
	Metrics   *metrics.StorefrontMetrics
}

// NewManager builds a cart manager for the given session.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.SessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote cart client required")
	}
	if params.Mirror == nil {
		return nil, fmt.Errorf("cart mirror required")
	}
	return &Manager{
		sessionID: params.SessionID,
		remote:    params.Remote,
		mirror:    params.Mirror,
		creds:     params.Creds,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// SessionID returns the owning session identifier.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Hydrate loads the authoritative cart from the remote service, replacing
// local state wholesale. On failure it falls back to the mirror and never
// returns an error to the caller. The fetch runs outside the mutation lock;
// a response that arrives after the cart changed locally is discarded.
func (m *Manager) Hydrate(ctx context.Context) {
	m.mu.Lock()
	startEpoch := m.epoch
	m.mu.Unlock()

	token := m.token(ctx)
	items, err := m.remote.FetchCart(ctx, token)
	if err != nil {
		m.logError(ctx, "cart hydrate failed, falling back to mirror", err)
		m.metrics.IncCartOp(string(OpHydrate), false)
		m.restoreMirror(ctx, startEpoch)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != startEpoch {
		// A mutation or reset landed while the fetch was in flight.
		return
	}
	m.items = items
	m.hydrated = true
	m.metrics.IncCartOp(string(OpHydrate), true)
	m.saveMirrorLocked(ctx)
}

// Hydrated reports whether a remote hydration has completed for this manager.
func (m *Manager) Hydrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hydrated
}

// AddItem adds the referenced product with the given quantity. The
// server-confirmed line is merged on success; on failure the collection is
// untouched and the notice names the attempted item.
func (m *Manager) AddItem(ctx context.Context, ref ProductRef, quantity int) (types.Notice, error) {
	if quantity < 1 {
		quantity = 1
	}
	if ref.ID == "" {
		err := pkgerrors.New(pkgerrors.CodeValidation, "product reference is required")
		return failureNotice("could not add item to cart", ref.Title), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	confirmed, err := m.remote.AddItem(ctx, m.token(ctx), ref.ID, quantity)
	if err != nil {
		m.logError(ctx, "cart add failed", err)
		m.metrics.IncCartOp(string(OpAdd), false)
		return failureNotice("could not add item to cart", ref.Title), err
	}

	m.mergeLocked(*confirmed)
	m.epoch++
	m.metrics.IncCartOp(string(OpAdd), true)
	m.saveMirrorLocked(ctx)
	return successNotice("item added to cart", confirmed.Title), nil
}

// UpdateQuantity sets the line's quantity to the server-confirmed value.
// A quantity of zero or less delegates to RemoveItem; zero is never
// persisted.
func (m *Manager) UpdateQuantity(ctx context.Context, itemKey string, quantity int) (types.Notice, error) {
	if quantity <= 0 {
		return m.RemoveItem(ctx, itemKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.findLocked(itemKey)
	if existing == nil {
		err := pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		return failureNotice("could not update item quantity", ""), err
	}
	title := existing.Title

	confirmed, err := m.remote.UpdateItem(ctx, m.token(ctx), itemKey, quantity)
	if err != nil {
		m.logError(ctx, "cart update failed", err)
		m.metrics.IncCartOp(string(OpUpdate), false)
		return failureNotice("could not update item quantity", title), err
	}

	m.mergeLocked(*confirmed)
	m.epoch++
	m.metrics.IncCartOp(string(OpUpdate), true)
	m.saveMirrorLocked(ctx)
	return successNotice("quantity updated", confirmed.Title), nil
}

// RemoveItem deletes the line after remote confirmation.
func (m *Manager) RemoveItem(ctx context.Context, itemKey string) (types.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.findLocked(itemKey)
	if existing == nil {
		err := pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		return failureNotice("could not remove item from cart", ""), err
	}
	title := existing.Title

	if err := m.remote.RemoveItem(ctx, m.token(ctx), itemKey); err != nil {
		m.logError(ctx, "cart remove failed", err)
		m.metrics.IncCartOp(string(OpRemove), false)
		return failureNotice("could not remove item from cart", title), err
	}

	filtered := m.items[:0]
	for _, item := range m.items {
		if item.ItemKey != itemKey {
			filtered = append(filtered, item)
		}
	}
	m.items = filtered
	m.epoch++
	m.metrics.IncCartOp(string(OpRemove), true)
	m.saveMirrorLocked(ctx)
	return successNotice("item removed from cart", title), nil
}

// Clear empties the cart after remote confirmation.
func (m *Manager) Clear(ctx context.Context) (types.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.remote.ClearCart(ctx, m.token(ctx)); err != nil {
		m.logError(ctx, "cart clear failed", err)
		m.metrics.IncCartOp(string(OpClear), false)
		return failureNotice("could not clear cart", ""), err
	}

	m.items = nil
	m.epoch++
	m.metrics.IncCartOp(string(OpClear), true)
	m.saveMirrorLocked(ctx)
	return successNotice("cart cleared", ""), nil
}

// ClearLocal empties the in-memory state and the mirror without calling the
// remote service. Used after confirmed payment, when the remote cart has
// already been consumed by the order.
func (m *Manager) ClearLocal(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.epoch++
	if err := m.mirror.Delete(ctx, m.sessionID); err != nil {
		m.logError(ctx, "cart mirror delete failed", err)
	}
}

// Items returns a copy of the ordered line collection.
func (m *Manager) Items() []commerce.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]commerce.LineItem, len(m.items))
	copy(out, m.items)
	return out
}

// ItemCount is the sum of line quantities, recomputed on every read.
func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		count += item.Quantity
	}
	return count
}

// TotalPrice is the sum of line totals, recomputed on every read.
func (m *Manager) TotalPrice() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, item := range m.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// mergeLocked inserts the confirmed line or replaces the entry with the same
// item key. The server's quantity wins.
func (m *Manager) mergeLocked(confirmed commerce.LineItem) {
	for i, item := range m.items {
		if item.ItemKey == confirmed.ItemKey {
			m.items[i] = confirmed
			return
		}
	}
	m.items = append(m.items, confirmed)
}

func (m *Manager) findLocked(itemKey string) *commerce.LineItem {
	for i := range m.items {
		if m.items[i].ItemKey == itemKey {
			return &m.items[i]
		}
	}
	return nil
}

func (m *Manager) restoreMirror(ctx context.Context, startEpoch uint64) {
	items, err := m.mirror.Load(ctx, m.sessionID)
	if err != nil {
		if err != ErrMirrorMiss {
			m.logError(ctx, "cart mirror load failed", err)
		}
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != startEpoch || m.hydrated {
		return
	}
	m.items = items
}

func (m *Manager) saveMirrorLocked(ctx context.Context) {
	if err := m.mirror.Save(ctx, m.sessionID, m.items); err != nil {
		m.logError(ctx, "cart mirror save failed", err)
	}
}

// token resolves the backend credential for this session. Guest sessions
// carry no credential and rely on the remote service's cart cookie/keying.
func (m *Manager) token(ctx context.Context) string {
	if m.creds == nil {
		return ""
	}
	token, err := m.creds.SessionToken(ctx, m.sessionID)
	if err != nil {
		return ""
	}
	return token
}

func (m *Manager) logError(ctx context.Context, msg string, err error) {
	if m.logg == nil {
		return
	}
	m.logg.Error(m.logg.WithSessionID(ctx, m.sessionID), msg, err)
}

func successNotice(message, title string) types.Notice {
	return types.Notice{Level: types.NoticeSuccess, Message: message, ItemTitle: title}
}

func failureNotice(message, title string) types.Notice {
	return types.Notice{Level: types.NoticeError, Message: message, ItemTitle: title}
}
