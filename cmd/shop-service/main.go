package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/GaetanCrabeels/bkdesign/internal/checkout"
	"github.com/GaetanCrabeels/bkdesign/internal/config"
	"github.com/GaetanCrabeels/bkdesign/internal/order"
	"github.com/GaetanCrabeels/bkdesign/internal/payments"
	"github.com/GaetanCrabeels/bkdesign/internal/product"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	orders := order.NewPGRepo(pool)
	variants := product.NewPGRepo(pool)

	sc := client.New(cfg.StripeSecretKey, nil)
	builder := checkout.NewBuilder(sc.CheckoutSessions, cfg.ClientURL)
	processor := payments.NewProcessor(cfg.StripeWebhookSecret, orders, variants)

	go purgeLoop(ctx, orders)

	r := newRouter(orders, variants, builder, processor, cfg)
	log.Printf("shop-service listening on %s", cfg.HTTPAddr)
	log.Fatal(r.Run(cfg.HTTPAddr))
}

// purgeLoop drops pending orders whose shipping flow was abandoned; the
// carrier popup simply stops calling back, so nothing else cleans them up.
func purgeLoop(ctx context.Context, orders order.Repository) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := orders.PurgeUnconfirmed(ctx, 24*time.Hour)
			if err != nil {
				log.Printf("[purge] %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[purge] removed %d unconfirmed orders", n)
			}
		}
	}
}
