package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
)

type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) error
	GetByReference(ctx context.Context, reference string) (*Order, []Item, error)
	SetShippingCost(ctx context.Context, reference string, cents int64) error
	UpdateEmail(ctx context.Context, reference, email string) error
	MarkPaid(ctx context.Context, reference string) error
	// RecordEvent stores a gateway event id and reports whether it was new.
	// A false return means the event was already processed.
	RecordEvent(ctx context.Context, eventID string) (bool, error)
	PurgeUnconfirmed(ctx context.Context, olderThan time.Duration) (int64, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, o *Order, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (reference, email, status, shipping_cents, created_at, updated_at)
    VALUES ($1,$2,$3,NULL,NOW(),NOW())
  `, o.Reference, o.Email, o.Status); err != nil {
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_reference, title, unit_cents, quantity, variant_id, promotion_percent)
      VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
    `, it.ID, o.Reference, it.Title, it.UnitCents, it.Quantity, it.VariantID, it.PromotionPercent); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByReference(ctx context.Context, reference string) (*Order, []Item, error) {
	var o Order
	if err := r.db.QueryRow(ctx, `
    SELECT reference, email, status, shipping_cents, created_at, updated_at
    FROM orders WHERE reference=$1
  `, reference).Scan(&o.Reference, &o.Email, &o.Status, &o.ShippingCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	rows, err := r.db.Query(ctx, `
    SELECT id, order_reference, title, unit_cents, quantity, COALESCE(variant_id,''), promotion_percent
    FROM order_items WHERE order_reference=$1
  `, reference)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderReference, &it.Title, &it.UnitCents, &it.Quantity, &it.VariantID, &it.PromotionPercent); err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return &o, items, rows.Err()
}

// SetShippingCost overwrites any previously confirmed cost (last write wins;
// the carrier may re-post when the customer changes delivery method).
func (r *PGRepo) SetShippingCost(ctx context.Context, reference string, cents int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET shipping_cents = $2, updated_at = NOW()
    WHERE reference = $1
  `, reference, cents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) UpdateEmail(ctx context.Context, reference, email string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET email = $2, updated_at = NOW()
    WHERE reference = $1
  `, reference, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid is idempotent: the gateway retries webhook delivery on transient
// failures, so a second call on an already-paid order succeeds.
func (r *PGRepo) MarkPaid(ctx context.Context, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET status = $2, updated_at = NOW()
    WHERE reference = $1
  `, reference, StatusPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) RecordEvent(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    INSERT INTO webhook_events (id, received_at)
    VALUES ($1, NOW())
    ON CONFLICT (id) DO NOTHING
  `, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// A pending order with a confirmed shipping cost may hold a live checkout
// session (payable for up to a day); only orders the carrier never priced
// are safe to reclaim.
const purgeUnconfirmedSQL = `
    DELETE FROM orders
    WHERE status = $1
      AND shipping_cents IS NULL
      AND created_at < NOW() - make_interval(secs => $2)
  `

// PurgeUnconfirmed removes pending orders whose shipping flow was abandoned
// before the carrier confirmed a cost.
func (r *PGRepo) PurgeUnconfirmed(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, purgeUnconfirmedSQL, StatusPending, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
