// Package payments finalizes orders from Stripe webhook events. This is the
// only place inventory is mutated.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/GaetanCrabeels/bkdesign/internal/order"
	"github.com/GaetanCrabeels/bkdesign/internal/product"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	ErrBadEvent         = errors.New("payments: malformed event payload")
)

type Processor struct {
	signingSecret string
	orders        order.Repository
	variants      product.Repository
}

func NewProcessor(signingSecret string, orders order.Repository, variants product.Repository) *Processor {
	return &Processor{signingSecret: signingSecret, orders: orders, variants: variants}
}

// Handle verifies the signature over the exact raw bytes, then applies a
// completed checkout: decrement stock per item and mark the order paid.
// Events other than checkout.session.completed are acknowledged untouched.
func (p *Processor) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	// The dashboard pins its own API version for webhook delivery; only the
	// signature decides authenticity here.
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.signingSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if event.Type != "checkout.session.completed" {
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	reference := session.Metadata["order_reference"]
	if reference == "" {
		return fmt.Errorf("%w: missing order_reference metadata", ErrBadEvent)
	}

	o, items, err := p.orders.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if o.Status == order.StatusPaid {
		// Replayed delivery for an order we already finalized.
		log.Printf("[webhook] event=%s ref=%s order already paid, skipping", event.ID, reference)
		return nil
	}

	// Financial state first. Nothing may be recorded against the event until
	// the paid mark is durable: a transient failure here leaves the order
	// untouched, so the gateway retry of the same event still applies in
	// full instead of being skipped as a duplicate.
	if err := p.orders.MarkPaid(ctx, reference); err != nil {
		return err
	}
	if fresh, err := p.orders.RecordEvent(ctx, event.ID); err != nil {
		log.Printf("[webhook] event=%s ref=%s recording event failed: %v", event.ID, reference, err)
	} else if !fresh {
		log.Printf("[webhook] event=%s ref=%s duplicate delivery", event.ID, reference)
	}

	// Payment is captured already; a failed stock update is bookkeeping to
	// report, never a reason to undo the paid mark or abort the other items.
	for _, it := range items {
		if it.VariantID == "" || it.Quantity <= 0 {
			continue
		}
		remaining, err := p.variants.DecrementStock(ctx, it.VariantID, it.Quantity)
		if err != nil {
			log.Printf("[webhook] ref=%s variant=%s stock update failed: %v", reference, it.VariantID, err)
			continue
		}
		log.Printf("[webhook] ref=%s variant=%s qty=%d remaining=%d", reference, it.VariantID, it.Quantity, remaining)
	}

	return nil
}
