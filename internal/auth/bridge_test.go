package auth

import (
	"context"
	"testing"
	"time"

	pkgauth "github.com/evergreen-market/storefront/pkg/auth"
	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/config"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	redislib "github.com/redis/go-redis/v9"
)

type stubExchanger struct {
	identity *commerce.Identity
	err      error
	calls    int
}

func (s *stubExchanger) ExchangeToken(ctx context.Context, identityToken string) (*commerce.Identity, error) {
	s.calls++
	return s.identity, s.err
}

type memoryIdentityStore struct {
	values map[string]string
}

func newMemoryIdentityStore() *memoryIdentityStore {
	return &memoryIdentityStore{values: map[string]string{}}
}

func (m *memoryIdentityStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryIdentityStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return value, nil
}

func (m *memoryIdentityStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type testIdentityKeyer struct{}

func (testIdentityKeyer) IdentityTokenKey(sessionID string) string {
	return "identity:token:" + sessionID
}

func (testIdentityKeyer) IdentityUserKey(sessionID string) string {
	return "identity:user:" + sessionID
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "storefront-test",
		ExpirationMinutes: 60,
	}
}

func newTestBridge(t *testing.T, exchange *stubExchanger, store *memoryIdentityStore) *Bridge {
	t.Helper()
	bridge, err := NewBridge(exchange, store, testIdentityKeyer{}, testJWTConfig())
	if err != nil {
		t.Fatalf("unexpected bridge error: %v", err)
	}
	return bridge
}

func TestExchangeCachesCredentialAndMintsToken(t *testing.T) {
	t.Parallel()

	exchange := &stubExchanger{identity: &commerce.Identity{Token: "backend-token", UserID: "user-9"}}
	store := newMemoryIdentityStore()
	bridge := newTestBridge(t, exchange, store)

	session, err := bridge.Exchange(context.Background(), "external-proof")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.SessionID == "" || session.UserID != "user-9" {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := pkgauth.ParseSessionToken(testJWTConfig(), session.SessionToken)
	if err != nil {
		t.Fatalf("minted token must parse: %v", err)
	}
	if claims.UserID != "user-9" || claims.SessionID() != session.SessionID {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	token, err := bridge.SessionToken(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "backend-token" {
		t.Fatalf("expected cached backend credential, got %q", token)
	}
}

func TestExchangeRequiresIdentityToken(t *testing.T) {
	t.Parallel()

	exchange := &stubExchanger{}
	bridge := newTestBridge(t, exchange, newMemoryIdentityStore())

	_, err := bridge.Exchange(context.Background(), "  ")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if exchange.calls != 0 {
		t.Fatal("blank token must not reach the backend")
	}
}

func TestSessionTokenMissingIsErrNoSession(t *testing.T) {
	t.Parallel()

	bridge := newTestBridge(t, &stubExchanger{}, newMemoryIdentityStore())

	if _, err := bridge.SessionToken(context.Background(), "unknown"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := bridge.SessionToken(context.Background(), ""); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession for blank session, got %v", err)
	}
}

func TestSignOutRemovesCachedIdentity(t *testing.T) {
	t.Parallel()

	exchange := &stubExchanger{identity: &commerce.Identity{Token: "backend-token", UserID: "user-9"}}
	store := newMemoryIdentityStore()
	bridge := newTestBridge(t, exchange, store)

	session, err := bridge.Exchange(context.Background(), "external-proof")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := bridge.SignOut(context.Background(), session.SessionID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bridge.SessionToken(context.Background(), session.SessionID); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after sign-out, got %v", err)
	}
	if _, err := bridge.UserID(context.Background(), session.SessionID); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession for user id after sign-out, got %v", err)
	}
}
