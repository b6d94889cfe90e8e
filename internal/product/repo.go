package product

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("variant not found")
)

type Repository interface {
	GetVariant(ctx context.Context, id string) (*Variant, error)
	// DecrementStock subtracts qty from the variant's available quantity in a
	// single conditional update, clamping at zero. Returns the new quantity.
	DecrementStock(ctx context.Context, id string, qty int) (int, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetVariant(ctx context.Context, id string) (*Variant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var v Variant
	err := r.db.QueryRow(ctx, `
		SELECT id, product_id, COALESCE(size,''), weight_grams, promotion_percent, quantity, created_at, updated_at
		FROM product_variants WHERE id=$1
	`, id).Scan(&v.ID, &v.ProductID, &v.Size, &v.WeightGrams, &v.PromotionPercent, &v.Quantity, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *PGRepo) DecrementStock(ctx context.Context, id string, qty int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// GREATEST keeps concurrent purchases of the same variant from driving
	// the count negative; the row update is atomic on its own.
	var remaining int
	err := r.db.QueryRow(ctx, `
		UPDATE product_variants
		SET quantity = GREATEST(quantity - $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING quantity
	`, id, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return remaining, nil
}
