package checkout

import (
	"context"
	"fmt"

	"github.com/evergreen-market/storefront/pkg/commerce"
	"github.com/evergreen-market/storefront/pkg/square"
)

type backendSessionAPI interface {
	CreateCheckoutSession(ctx context.Context, token string, input commerce.CreateCheckoutSessionInput) (*commerce.CheckoutSession, error)
}

// BackendSessionCreator creates hosted sessions through the commerce
// backend's checkout-session endpoint. This is the default wiring.
type BackendSessionCreator struct {
	api backendSessionAPI
}

// NewBackendSessionCreator wraps the commerce client as a session creator.
func NewBackendSessionCreator(api backendSessionAPI) (*BackendSessionCreator, error) {
	if api == nil {
		return nil, fmt.Errorf("commerce client required")
	}
	return &BackendSessionCreator{api: api}, nil
}

func (c *BackendSessionCreator) Create(ctx context.Context, input SessionInput) (*commerce.CheckoutSession, error) {
	lines := make([]commerce.CheckoutLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, commerce.CheckoutLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return c.api.CreateCheckoutSession(ctx, input.Token, commerce.CreateCheckoutSessionInput{
		Lines: lines,
	})
}

// SquareSessionCreator creates Square-hosted payment links, for deployments
// that integrate the processor directly instead of going through the
// backend's session endpoint.
type SquareSessionCreator struct {
	client *square.Client
}

// NewSquareSessionCreator wraps the Square client as a session creator.
func NewSquareSessionCreator(client *square.Client) (*SquareSessionCreator, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareSessionCreator{client: client}, nil
}

func (c *SquareSessionCreator) Create(ctx context.Context, input SessionInput) (*commerce.CheckoutSession, error) {
	return c.client.CreatePaymentLink(ctx, square.PaymentLinkParams{
		Lines:     input.Lines,
		ReturnURL: input.ReturnURL,
	})
}
