package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgauth "github.com/evergreen-market/storefront/pkg/auth"
	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/config"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	redislib "github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when no backend credential is cached for the
// session. Callers re-obtain one lazily by prompting sign-in; the bridge
// never refreshes proactively.
var ErrNoSession = errors.New("no identity session")

type exchanger interface {
	ExchangeToken(ctx context.Context, identityToken string) (*commerce.Identity, error)
}

type identityStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type identityKeyer interface {
	IdentityTokenKey(sessionID string) string
	IdentityUserKey(sessionID string) string
}

// Bridge trades external identity proof for a backend credential, caches it
// per session, and mints the storefront's own session token. It writes only
// identity keys; cart keys belong to the cart manager.
type Bridge struct {
	exchange exchanger
	store    identityStore
	keyer    identityKeyer
	jwtCfg   config.JWTConfig
	ttl      time.Duration
}

// NewBridge builds the auth bridge.
func NewBridge(exchange exchanger, store identityStore, keyer identityKeyer, jwtCfg config.JWTConfig) (*Bridge, error) {
	if exchange == nil {
		return nil, fmt.Errorf("token exchanger required")
	}
	if store == nil {
		return nil, fmt.Errorf("identity store required")
	}
	if keyer == nil {
		return nil, fmt.Errorf("identity keyer required")
	}
	ttl := jwtCfg.SessionTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Bridge{
		exchange: exchange,
		store:    store,
		keyer:    keyer,
		jwtCfg:   jwtCfg,
		ttl:      ttl,
	}, nil
}

// Session is the result of a successful exchange.
type Session struct {
	SessionID    string
	UserID       string
	SessionToken string
}

// Exchange verifies the external identity token against the backend, caches
// the returned credential under a fresh session id, and mints the storefront
// session JWT handed to the browser.
func (b *Bridge) Exchange(ctx context.Context, identityToken string) (*Session, error) {
	if strings.TrimSpace(identityToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity token is required")
	}

	identity, err := b.exchange.ExchangeToken(ctx, identityToken)
	if err != nil {
		return nil, err
	}

	sessionID := pkgauth.NewSessionID()
	if err := b.store.Set(ctx, b.keyer.IdentityTokenKey(sessionID), identity.Token, b.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache backend credential")
	}
	if err := b.store.Set(ctx, b.keyer.IdentityUserKey(sessionID), identity.UserID, b.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache user id")
	}

	signed, err := pkgauth.MintSessionToken(b.jwtCfg, time.Now(), pkgauth.SessionTokenPayload{
		UserID:    identity.UserID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token")
	}

	return &Session{
		SessionID:    sessionID,
		UserID:       identity.UserID,
		SessionToken: signed,
	}, nil
}

// SessionToken returns the cached backend credential for the session, or
// ErrNoSession when the cache holds none.
func (b *Bridge) SessionToken(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrNoSession
	}
	token, err := b.store.Get(ctx, b.keyer.IdentityTokenKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNoSession
		}
		return "", err
	}
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// UserID returns the cached remote user id for the session.
func (b *Bridge) UserID(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrNoSession
	}
	userID, err := b.store.Get(ctx, b.keyer.IdentityUserKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNoSession
		}
		return "", err
	}
	return userID, nil
}

// SignOut invalidates the cached identity for the session.
func (b *Bridge) SignOut(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return b.store.Del(ctx,
		b.keyer.IdentityTokenKey(sessionID),
		b.keyer.IdentityUserKey(sessionID),
	)
}
