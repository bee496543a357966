package commerce

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// LineItem is one cart entry as confirmed by the remote commerce service.
// ItemKey is the server-assigned line identifier; it is stable across
// quantity updates and changes when a product is removed and re-added.
// Meta keeps unrecognized vendor fields without giving up the closed shape.
type LineItem struct {
	ItemKey   string                     `json:"item_key"`
	ProductID string                     `json:"product_id"`
	Title     string                     `json:"title"`
	ImageURL  string                     `json:"image_url"`
	UnitPrice decimal.Decimal            `json:"unit_price"`
	Quantity  int                        `json:"quantity"`
	Meta      map[string]json.RawMessage `json:"meta,omitempty"`
}

// LineTotal returns unit price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Product is a catalog entry surfaced by the browse endpoints.
type Product struct {
	ID          string                     `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description,omitempty"`
	ImageURL    string                     `json:"image_url"`
	UnitPrice   decimal.Decimal            `json:"unit_price"`
	Meta        map[string]json.RawMessage `json:"meta,omitempty"`
}

// Order is a committed order summary from the account view.
type Order struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt string          `json:"created_at"`
	Items     []LineItem      `json:"items,omitempty"`
}

// CheckoutSession is the handle returned by session creation. RedirectURL
// points at the processor-hosted payment page.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// SessionStatus reports the payment state of a checkout session.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Paid reports whether the processor confirmed payment for the session.
func (s SessionStatus) Paid() bool {
	return s.Status == "paid" || s.Status == "complete"
}

// Identity is the backend credential returned by the token exchange.
type Identity struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// CheckoutLine is the minimal line shape sent when creating a session.
type CheckoutLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ProductPage is one page of catalog results.
type ProductPage struct {
	Products   []Product `json:"products"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// wireItem mirrors the remote cart service's line item payload.
type wireItem struct {
	ItemKey string `json:"item_key"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Prices  struct {
		Price json.Number `json:"price"`
	} `json:"prices"`
	FeaturedImage string                     `json:"featured_image"`
	Quantity      int                        `json:"quantity"`
	Extra         map[string]json.RawMessage `json:"-"`
}

var knownWireFields = map[string]struct{}{
	"item_key":       {},
	"id":             {},
	"name":           {},
	"prices":         {},
	"featured_image": {},
	"quantity":       {},
}

// decodeWireItem unmarshals a raw line payload, keeping unrecognized vendor
// fields in Extra.
func decodeWireItem(raw json.RawMessage) (wireItem, error) {
	var item wireItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return wireItem{}, err
	}
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return wireItem{}, err
	}
	for field := range knownWireFields {
		delete(loose, field)
	}
	if len(loose) > 0 {
		item.Extra = loose
	}
	return item, nil
}

func (w wireItem) toLineItem() (LineItem, error) {
	price, err := decimal.NewFromString(w.Prices.Price.String())
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		ItemKey:   w.ItemKey,
		ProductID: w.ID,
		Title:     w.Name,
		ImageURL:  w.FeaturedImage,
		UnitPrice: price,
		Quantity:  w.Quantity,
		Meta:      w.Extra,
	}, nil
}

// mapItems converts the service's keyed item map into a deterministically
// ordered slice. The wire map carries no ordering, so lines are sorted by
// item key; order is display-only.
func mapItems(raw map[string]json.RawMessage) ([]LineItem, error) {
	items := make([]LineItem, 0, len(raw))
	for _, payload := range raw {
		wire, err := decodeWireItem(payload)
		if err != nil {
			return nil, err
		}
		item, err := wire.toLineItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemKey < items[j].ItemKey })
	return items, nil
}
