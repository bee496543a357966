package cart

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/evergreen-market/storefront/pkg/commerce"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/types"
	redislib "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type stubRemote struct {
	fetchItems []commerce.LineItem
	fetchErr   error
	addItem    *commerce.LineItem
	addErr     error
	updateItem *commerce.LineItem
	updateErr  error
	removeErr  error
	clearErr   error

	fetchCalls  int
	addCalls    int
	updateCalls int
	removeCalls int
	clearCalls  int
}

func (s *stubRemote) FetchCart(ctx context.Context, token string) ([]commerce.LineItem, error) {
	s.fetchCalls++
	return s.fetchItems, s.fetchErr
}

func (s *stubRemote) AddItem(ctx context.Context, token, productID string, quantity int) (*commerce.LineItem, error) {
	s.addCalls++
	return s.addItem, s.addErr
}

func (s *stubRemote) UpdateItem(ctx context.Context, token, itemKey string, quantity int) (*commerce.LineItem, error) {
	s.updateCalls++
	return s.updateItem, s.updateErr
}

func (s *stubRemote) RemoveItem(ctx context.Context, token, itemKey string) error {
	s.removeCalls++
	return s.removeErr
}

func (s *stubRemote) ClearCart(ctx context.Context, token string) error {
	s.clearCalls++
	return s.clearErr
}

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return value, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type stubKeyer struct{}

func (stubKeyer) CartKey(sessionID string) string { return "cart:" + sessionID }

func line(key, productID, title, price string, qty int) commerce.LineItem {
	return commerce.LineItem{
		ItemKey:   key,
		ProductID: productID,
		Title:     title,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func newTestManager(t *testing.T, remote *stubRemote) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	mirror, err := NewMirror(store, stubKeyer{}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}
	mgr, err := NewManager(ManagerParams{
		SessionID: "session-1",
		Remote:    remote,
		Mirror:    mirror,
	})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return mgr, store
}

func TestHydrateReplacesLocalState(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{fetchItems: []commerce.LineItem{
		line("a", "p1", "Hoodie", "25.00", 5),
		line("b", "p2", "Cap", "10.50", 1),
	}}
	mgr, store := newTestManager(t, remote)

	mgr.Hydrate(context.Background())

	if !mgr.Hydrated() {
		t.Fatal("expected manager to be hydrated")
	}
	if got := mgr.ItemCount(); got != 6 {
		t.Fatalf("expected item count 6, got %d", got)
	}
	if got := mgr.TotalPrice().StringFixed(2); got != "135.50" {
		t.Fatalf("expected total 135.50, got %s", got)
	}
	if len(store.values) != 1 {
		t.Fatalf("expected mirror write, got %d keys", len(store.values))
	}
}

func TestHydrateFailureFallsBackToMirror(t *testing.T) {
	t.Parallel()

	seed := &stubRemote{fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 2)}}
	mgr, store := newTestManager(t, seed)
	mgr.Hydrate(context.Background())

	failing := &stubRemote{fetchErr: errors.New("service down")}
	mirror, err := NewMirror(store, stubKeyer{}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}
	fresh, err := NewManager(ManagerParams{SessionID: "session-1", Remote: failing, Mirror: mirror})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}

	fresh.Hydrate(context.Background())

	if fresh.Hydrated() {
		t.Fatal("mirror fallback must not mark the manager hydrated")
	}
	if got := fresh.ItemCount(); got != 2 {
		t.Fatalf("expected mirrored count 2, got %d", got)
	}
}

func TestAddItemMergesConfirmedLine(t *testing.T) {
	t.Parallel()

	confirmed := line("a", "p1", "Hoodie", "25.00", 5)
	remote := &stubRemote{addItem: &confirmed}
	mgr, _ := newTestManager(t, remote)

	notice, err := mgr.AddItem(context.Background(), ProductRef{ID: "p1", Title: "Hoodie"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notice.Level != types.NoticeSuccess || notice.ItemTitle != "Hoodie" {
		t.Fatalf("unexpected notice: %+v", notice)
	}
	if got := mgr.ItemCount(); got != 5 {
		t.Fatalf("expected count 5, got %d", got)
	}
	if got := mgr.TotalPrice().StringFixed(2); got != "125.00" {
		t.Fatalf("expected total 125.00, got %s", got)
	}
}

func TestAddItemFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	seeded := line("a", "p1", "Hoodie", "25.00", 1)
	remote := &stubRemote{
		fetchItems: []commerce.LineItem{seeded},
		addErr:     pkgerrors.New(pkgerrors.CodeDependency, "service down"),
	}
	mgr, _ := newTestManager(t, remote)
	mgr.Hydrate(context.Background())
	before := mgr.Items()

	notice, err := mgr.AddItem(context.Background(), ProductRef{ID: "p2", Title: "Cap"}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if notice.Level != types.NoticeError || notice.ItemTitle != "Cap" {
		t.Fatalf("failure notice must name the attempted item, got %+v", notice)
	}
	if !reflect.DeepEqual(before, mgr.Items()) {
		t.Fatal("failed add must not change the collection")
	}
}

func TestUpdateQuantityZeroDelegatesToRemove(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 2)}}
	mgr, _ := newTestManager(t, remote)
	mgr.Hydrate(context.Background())

	notice, err := mgr.UpdateQuantity(context.Background(), "a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.removeCalls != 1 || remote.updateCalls != 0 {
		t.Fatalf("expected remove call, got remove=%d update=%d", remote.removeCalls, remote.updateCalls)
	}
	if notice.Message != "item removed from cart" {
		t.Fatalf("unexpected notice: %+v", notice)
	}
	if got := mgr.ItemCount(); got != 0 {
		t.Fatalf("expected empty cart, got %d", got)
	}
}

func TestUpdateQuantityUsesServerConfirmedValue(t *testing.T) {
	t.Parallel()

	confirmed := line("a", "p1", "Hoodie", "25.00", 3)
	remote := &stubRemote{
		fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 1)},
		updateItem: &confirmed,
	}
	mgr, _ := newTestManager(t, remote)
	mgr.Hydrate(context.Background())

	if _, err := mgr.UpdateQuantity(context.Background(), "a", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mgr.ItemCount(); got != 3 {
		t.Fatalf("server quantity must win, got %d", got)
	}
}

func TestUpdateQuantityUnknownItem(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{}
	mgr, _ := newTestManager(t, remote)

	_, err := mgr.UpdateQuantity(context.Background(), "missing", 2)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if remote.updateCalls != 0 {
		t.Fatal("unknown item must not reach the remote service")
	}
}

func TestRemoveItemFailureKeepsLine(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{
		fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 2)},
		removeErr:  pkgerrors.New(pkgerrors.CodeDependency, "service down"),
	}
	mgr, _ := newTestManager(t, remote)
	mgr.Hydrate(context.Background())

	notice, err := mgr.RemoveItem(context.Background(), "a")
	if err == nil {
		t.Fatal("expected error")
	}
	if notice.ItemTitle != "Hoodie" {
		t.Fatalf("failure notice must name the item, got %+v", notice)
	}
	if got := mgr.ItemCount(); got != 2 {
		t.Fatalf("failed remove must keep the line, got count %d", got)
	}
}

func TestClearEmptiesCollection(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{fetchItems: []commerce.LineItem{
		line("a", "p1", "Hoodie", "25.00", 2),
		line("b", "p2", "Cap", "10.00", 1),
	}}
	mgr, _ := newTestManager(t, remote)
	mgr.Hydrate(context.Background())

	if _, err := mgr.Clear(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mgr.ItemCount(); got != 0 {
		t.Fatalf("expected empty cart, got %d", got)
	}
	if got := mgr.TotalPrice().StringFixed(2); got != "0.00" {
		t.Fatalf("expected zero total, got %s", got)
	}
}

func TestClearLocalSkipsRemoteAndDropsMirror(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 2)}}
	mgr, store := newTestManager(t, remote)
	mgr.Hydrate(context.Background())

	mgr.ClearLocal(context.Background())

	if remote.clearCalls != 0 {
		t.Fatal("local clear must not call the remote service")
	}
	if got := mgr.ItemCount(); got != 0 {
		t.Fatalf("expected empty cart, got %d", got)
	}
	if len(store.values) != 0 {
		t.Fatalf("expected mirror removed, got %d keys", len(store.values))
	}
}

func TestRegistryHydratesOnce(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{fetchItems: []commerce.LineItem{line("a", "p1", "Hoodie", "25.00", 1)}}
	store := newMemoryStore()
	mirror, err := NewMirror(store, stubKeyer{}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}
	registry, err := NewRegistry(RegistryParams{Remote: remote, Mirror: mirror})
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}

	first, err := registry.Manager(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := registry.Manager(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected the same manager per session")
	}
	if remote.fetchCalls != 1 {
		t.Fatalf("expected one hydrate, got %d", remote.fetchCalls)
	}

	registry.Drop(context.Background(), "session-1")
	third, err := registry.Manager(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == first {
		t.Fatal("expected a fresh manager after drop")
	}
}
