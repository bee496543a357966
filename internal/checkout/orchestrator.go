package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evergreen-market/storefront/internal/auth"
	"github.com/evergreen-market/storefront/internal/cart"
	"github.com/evergreen-market/storefront/pkg/commerce"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/metrics"
)

// State is one node of the checkout machine.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingAuth    State = "awaiting_auth"
	StateCreatingSession State = "creating_session"
	StateRedirecting     State = "redirecting"
	StateFailed          State = "failed"
	StateCompleted       State = "completed"
)

type carts interface {
	Manager(ctx context.Context, sessionID string) (*cart.Manager, error)
}

type credentials interface {
	SessionToken(ctx context.Context, sessionID string) (string, error)
}

// SessionInput is the payload handed to a session creator.
type SessionInput struct {
	Token     string
	Lines     []commerce.LineItem
	ReturnURL string
}

// SessionCreator produces a hosted checkout session for the cart lines.
// Exactly one creator is wired per deployment.
type SessionCreator interface {
	Create(ctx context.Context, input SessionInput) (*commerce.CheckoutSession, error)
}

type statusChecker interface {
	CheckoutSessionStatus(ctx context.Context, token, sessionID string) (*commerce.SessionStatus, error)
}

// Orchestrator drives the checkout state machine per shopper session:
// Idle -> AwaitingAuth -> CreatingSession -> Redirecting, with Failed
// recoverable via acknowledgment and Completed clearing the local cart.
// One outbound session-creation call per attempt; a second attempt while one
// is active is refused.
type Orchestrator struct {
	carts     carts
	creds     credentials
	creator   SessionCreator
	status    statusChecker
	returnURL string
	logg      *logger.Logger
	metrics   *metrics.StorefrontMetrics

	mu     sync.Mutex
	states map[string]*attempt
}

type attempt struct {
	state   State
	message string
}

// OrchestratorParams collects the orchestrator's dependencies.
type OrchestratorParams struct {
	Carts     carts
	Creds     credentials
	Creator   SessionCreator
	Status    statusChecker
	ReturnURL string
	Logger    *logger.Logger
	Metrics   *metrics.StorefrontMetrics
}

// NewOrchestrator builds the checkout orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart registry required")
	}
	if params.Creds == nil {
		return nil, fmt.Errorf("credential source required")
	}
	if params.Creator == nil {
		return nil, fmt.Errorf("session creator required")
	}
	if params.Status == nil {
		return nil, fmt.Errorf("status checker required")
	}
	if params.ReturnURL == "" {
		return nil, fmt.Errorf("return url required")
	}
	return &Orchestrator{
		carts:     params.Carts,
		creds:     params.Creds,
		creator:   params.Creator,
		status:    params.Status,
		returnURL: params.ReturnURL,
		logg:      params.Logger,
		metrics:   params.Metrics,
		states:    make(map[string]*attempt),
	}, nil
}

// BeginResult reports the outcome of a checkout attempt.
type BeginResult struct {
	State       State  `json:"state"`
	SessionID   string `json:"session_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Begin runs one checkout attempt for the session. An empty cart is a no-op
// that leaves the machine at Idle. Missing identity fails before any network
// call with a sign-in prompt. On success the machine rests at Redirecting
// and the caller issues the redirect.
func (o *Orchestrator) Begin(ctx context.Context, sessionID string) (*BeginResult, error) {
	mgr, err := o.carts.Manager(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	// Guard: empty cart, no transition.
	if mgr.ItemCount() == 0 {
		return &BeginResult{State: StateIdle}, nil
	}

	// A shopper who navigated back from the hosted page without paying may
	// start over; the prior attempt ended at the redirect.
	o.mu.Lock()
	if att, ok := o.states[sessionID]; ok && att.state == StateRedirecting {
		att.state = StateIdle
	}
	o.mu.Unlock()

	if err := o.transition(sessionID, StateIdle, StateAwaitingAuth); err != nil {
		return nil, err
	}

	token, err := o.creds.SessionToken(ctx, sessionID)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			o.fail(ctx, sessionID, "sign in to continue to checkout")
			o.metrics.IncCheckout("auth_required")
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout")
		}
		o.fail(ctx, sessionID, "could not verify your session")
		o.metrics.IncCheckout("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve session credential")
	}

	if err := o.transition(sessionID, StateAwaitingAuth, StateCreatingSession); err != nil {
		return nil, err
	}

	session, err := o.creator.Create(ctx, SessionInput{
		Token:     token,
		Lines:     mgr.Items(),
		ReturnURL: o.returnURL,
	})
	if err != nil {
		o.fail(ctx, sessionID, publicCheckoutMessage(err))
		o.metrics.IncCheckout("failed")
		return nil, err
	}

	if err := o.transition(sessionID, StateCreatingSession, StateRedirecting); err != nil {
		return nil, err
	}

	o.metrics.IncCheckout("redirected")
	o.logInfo(ctx, sessionID, "checkout session created, redirecting")
	return &BeginResult{
		State:       StateRedirecting,
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	}, nil
}

// Complete is called by the payment-success return page. It queries the
// session status and clears the local cart only on confirmed payment; an
// abandoned payment keeps the cart intact.
func (o *Orchestrator) Complete(ctx context.Context, sessionID, checkoutSessionID string) error {
	token, err := o.creds.SessionToken(ctx, sessionID)
	if err != nil && !errors.Is(err, auth.ErrNoSession) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve session credential")
	}

	status, err := o.status.CheckoutSessionStatus(ctx, token, checkoutSessionID)
	if err != nil {
		return err
	}
	if !status.Paid() {
		return pkgerrors.New(pkgerrors.CodePayment, "payment has not completed").
			WithDetails(map[string]any{"status": status.Status})
	}

	mgr, err := o.carts.Manager(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	mgr.ClearLocal(ctx)

	o.setState(sessionID, StateCompleted, "")
	o.setState(sessionID, StateIdle, "")
	o.metrics.IncCheckout("completed")
	o.logInfo(ctx, sessionID, "checkout completed, cart cleared")
	return nil
}

// StateFor returns the session's machine state and any failure message.
func (o *Orchestrator) StateFor(sessionID string) (State, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.states[sessionID]; ok {
		return att.state, att.message
	}
	return StateIdle, ""
}

// Acknowledge resets a Failed machine to Idle so a new attempt may start.
func (o *Orchestrator) Acknowledge(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.states[sessionID]; ok && att.state == StateFailed {
		att.state = StateIdle
		att.message = ""
	}
}

func (o *Orchestrator) transition(sessionID string, from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	att, ok := o.states[sessionID]
	if !ok {
		att = &attempt{state: StateIdle}
		o.states[sessionID] = att
	}
	if att.state != from {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("checkout is %s", att.state)).
			WithDetails(map[string]any{"state": string(att.state)})
	}
	att.state = to
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, sessionID, message string) {
	o.setState(sessionID, StateFailed, message)
	o.logInfo(ctx, sessionID, "checkout failed: "+message)
}

func (o *Orchestrator) setState(sessionID string, state State, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	att, ok := o.states[sessionID]
	if !ok {
		att = &attempt{}
		o.states[sessionID] = att
	}
	att.state = state
	att.message = message
}

func (o *Orchestrator) logInfo(ctx context.Context, sessionID, msg string) {
	if o.logg == nil {
		return
	}
	o.logg.Info(o.logg.WithSessionID(ctx, sessionID), msg)
}

func publicCheckoutMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeValidation:
			return typed.Message()
		case pkgerrors.CodePayment:
			return "payment could not be started, try again"
		}
	}
	return "checkout is temporarily unavailable"
}
