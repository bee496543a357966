package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/metrics"
)

// Registry hands out one cart manager per shopper session, hydrating each
// manager once on first use. Lifecycle is tied to the process; dropping a
// session removes its manager and mirror.
type Registry struct {
	remote  remoteCart
	mirror  *Mirror
	creds   credentialSource
	logg    *logger.Logger
	metrics *metrics.StorefrontMetrics

	mu       sync.Mutex
	managers map[string]*Manager
}

// RegistryParams collects the dependencies shared by all managers.
type RegistryParams struct {
	Remote  remoteCart
	Mirror  *Mirror
	Creds   credentialSource
	Logger  *logger.Logger
	Metrics *metrics.StorefrontMetrics
}

// NewRegistry builds the session-keyed manager registry.
func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote cart client required")
	}
	if params.Mirror == nil {
		return nil, fmt.Errorf("cart mirror required")
	}
	return &Registry{
		remote:   params.Remote,
		mirror:   params.Mirror,
		creds:    params.Creds,
		logg:     params.Logger,
		metrics:  params.Metrics,
		managers: make(map[string]*Manager),
	}, nil
}

// Manager returns the session's cart manager, creating and hydrating it on
// first access.
func (r *Registry) Manager(ctx context.Context, sessionID string) (*Manager, error) {
	r.mu.Lock()
	if mgr, ok := r.managers[sessionID]; ok {
		r.mu.Unlock()
		return mgr, nil
	}
	mgr, err := NewManager(ManagerParams{
		SessionID: sessionID,
		Remote:    r.remote,
		Mirror:    r.mirror,
		Creds:     r.creds,
		Logger:    r.logg,
		Metrics:   r.metrics,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.managers[sessionID] = mgr
	r.mu.Unlock()

	mgr.Hydrate(ctx)
	return mgr, nil
}

// Drop removes the session's manager and deletes its mirror. Called on
// sign-out.
func (r *Registry) Drop(ctx context.Context, sessionID string) {
	r.mu.Lock()
	mgr, ok := r.managers[sessionID]
	delete(r.managers, sessionID)
	r.mu.Unlock()
	if ok {
		mgr.ClearLocal(ctx)
	}
}
