// Package checkout turns a reconciled order into a hosted Stripe Checkout
// session: promotion pricing, the free-shipping rule and the session snapshot
// all live here.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"

	"github.com/GaetanCrabeels/bkdesign/internal/order"
)

// FreeShippingThresholdCents zeroes the shipping cost once the discounted
// item subtotal reaches €75.00.
const FreeShippingThresholdCents int64 = 7500

const shippingLineName = "Shipping"

var (
	ErrMissingEmail         = errors.New("checkout: customer email is required")
	ErrShippingNotConfirmed = errors.New("checkout: shipping cost not confirmed")
	ErrSessionFailed        = errors.New("checkout: session creation failed")
)

// LineItem is one priced row of the session snapshot, in cents.
type LineItem struct {
	Name      string `json:"name"`
	UnitCents int64  `json:"unit_cents"`
	Quantity  int64  `json:"quantity"`
}

var oneHundred = decimal.NewFromInt(100)

// EffectiveUnitCents applies a whole-percent promotion to a base unit price,
// rounding half-up at the cent.
func EffectiveUnitCents(unitCents int64, promotionPercent int) int64 {
	if promotionPercent <= 0 {
		return unitCents
	}
	if promotionPercent >= 100 {
		return 0
	}
	discounted := decimal.NewFromInt(unitCents).
		Mul(decimal.NewFromInt(int64(100 - promotionPercent))).
		Div(oneHundred)
	return discounted.Round(0).IntPart()
}

// Subtotal sums the discounted item prices, pre-shipping.
func Subtotal(items []order.Item) int64 {
	var total int64
	for _, it := range items {
		total += EffectiveUnitCents(it.UnitCents, it.PromotionPercent) * int64(it.Quantity)
	}
	return total
}

// BuildLineItems prices every item with its promotion applied and appends
// shipping as a synthetic line. Shipping is forced to zero at or above the
// free-shipping threshold and omitted entirely when not strictly positive.
func BuildLineItems(items []order.Item, shippingCents int64) []LineItem {
	if Subtotal(items) >= FreeShippingThresholdCents {
		shippingCents = 0
	}

	lines := make([]LineItem, 0, len(items)+1)
	for _, it := range items {
		lines = append(lines, LineItem{
			Name:      it.Title,
			UnitCents: EffectiveUnitCents(it.UnitCents, it.PromotionPercent),
			Quantity:  int64(it.Quantity),
		})
	}
	if shippingCents > 0 {
		lines = append(lines, LineItem{Name: shippingLineName, UnitCents: shippingCents, Quantity: 1})
	}
	return lines
}

// Total is the amount the customer pays: discounted subtotal plus shipping
// after the free-shipping rule.
func Total(items []order.Item, shippingCents int64) int64 {
	sub := Subtotal(items)
	if sub >= FreeShippingThresholdCents {
		return sub
	}
	return sub + shippingCents
}

// SessionCreator is the slice of the Stripe API the builder needs; the
// production value is the CheckoutSessions client.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Builder struct {
	sessions  SessionCreator
	clientURL string
}

func NewBuilder(sessions SessionCreator, clientURL string) *Builder {
	return &Builder{sessions: sessions, clientURL: clientURL}
}

// CreateSession snapshots the order into a hosted payment session and returns
// the redirect URL. The order must carry a customer email and a reconciled
// shipping cost; client sequencing alone is not trusted.
func (b *Builder) CreateSession(ctx context.Context, o *order.Order, items []order.Item) (string, error) {
	if o.Email == "" {
		return "", ErrMissingEmail
	}
	if o.ShippingCents == nil {
		return "", ErrShippingNotConfirmed
	}

	lines := BuildLineItems(items, *o.ShippingCents)
	lineParams := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, l := range lines {
		lineParams = append(lineParams, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("eur"),
				UnitAmount: stripe.Int64(l.UnitCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(o.Email),
		SuccessURL:    stripe.String(fmt.Sprintf("%s/confirm?orderReference=%s", b.clientURL, o.Reference)),
		CancelURL:     stripe.String(fmt.Sprintf("%s/cancel?orderReference=%s", b.clientURL, o.Reference)),
		LineItems:     lineParams,
		Metadata:      map[string]string{"order_reference": o.Reference},
	}
	params.Context = ctx

	session, err := b.sessions.New(params)
	if err != nil {
		// Full gateway error stays server-side; callers get the generic kind.
		log.Printf("[checkout] ref=%s stripe session error: %v", o.Reference, err)
		return "", ErrSessionFailed
	}
	return session.URL, nil
}
