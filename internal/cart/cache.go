package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evergreen-market/storefront/pkg/commerce"
	redislib "github.com/redis/go-redis/v9"
)

// ErrMirrorMiss is returned when no mirror exists for the session.
var ErrMirrorMiss = errors.New("cart mirror miss")

type mirrorStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type mirrorKeyer interface {
	CartKey(sessionID string) string
}

// Mirror persists a best-effort copy of the cart lines so a session that
// cannot reach the remote service still renders its last known cart.
// The remote service stays the source of truth; the mirror is written only
// after a confirmed mutation.
type Mirror struct {
	store mirrorStore
	keyer mirrorKeyer
	ttl   time.Duration
}

// NewMirror builds the cart mirror on top of the shared cache client.
func NewMirror(store mirrorStore, keyer mirrorKeyer, ttl time.Duration) (*Mirror, error) {
	if store == nil {
		return nil, fmt.Errorf("mirror store required")
	}
	if keyer == nil {
		return nil, fmt.Errorf("mirror keyer required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Mirror{store: store, keyer: keyer, ttl: ttl}, nil
}

// Save writes the full line collection for the session.
func (m *Mirror) Save(ctx context.Context, sessionID string, items []commerce.LineItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart mirror: %w", err)
	}
	return m.store.Set(ctx, m.keyer.CartKey(sessionID), string(payload), m.ttl)
}

// Load returns the mirrored lines, or ErrMirrorMiss when none exist.
func (m *Mirror) Load(ctx context.Context, sessionID string) ([]commerce.LineItem, error) {
	raw, err := m.store.Get(ctx, m.keyer.CartKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, ErrMirrorMiss
		}
		return nil, err
	}
	var items []commerce.LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart mirror: %w", err)
	}
	return items, nil
}

// Delete removes the mirrored cart for the session.
func (m *Mirror) Delete(ctx context.Context, sessionID string) error {
	return m.store.Del(ctx, m.keyer.CartKey(sessionID))
}
