package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"ms-auctions/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := d.Bun.NewSelect().
		Model(&p).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CaptureForAuction atomically flips a product into auction hands. The
// conditional update is the capture gate: it only lands on an available,
// uncaptured, non-event product owned by the artist, so two concurrent
// captures cannot both succeed. Returns the pre-capture pricing
// snapshot.
func (d *DB) CaptureForAuction(ctx context.Context, productID, artistID string, beginPrice float64) (models.PriceSnapshot, bool, error) {
	var snap models.PriceSnapshot
	captured := false

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var p models.Product
		if err := tx.NewSelect().
			Model(&p).
			Where("id = ?", productID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		snap = p.Snapshot()

		res, err := tx.NewUpdate().
			Model((*models.Product)(nil)).
			Set("is_auction = ?", true).
			Set("discount = ?", 0.0).
			Set("base_price = ?", beginPrice).
			Set("applied_price = ?", beginPrice).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", productID).
			Where("artist_id = ?", artistID).
			Where("is_available = ?", true).
			Where("is_auction = ?", false).
			Where("is_event = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		captured = rows == 1
		return nil
	})
	return snap, captured, err
}

// RepriceCaptured re-primes a captured product's price fields. Only
// lands while the product is under auction.
func (d *DB) RepriceCaptured(ctx context.Context, productID string, price float64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("base_price = ?", price).
		Set("applied_price = ?", price).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", productID).
		Where("is_auction = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ReleaseFromAuction hands the product back, restoring the pre-auction
// pricing snapshot.
func (d *DB) ReleaseFromAuction(ctx context.Context, productID string, snap models.PriceSnapshot) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("is_auction = ?", false).
		Set("base_price = ?", snap.BasePrice).
		Set("discount = ?", snap.Discount).
		Set("applied_price = ?", snap.AppliedPrice).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", productID).
		Exec(ctx)
	return err
}

// FinalizeSale fixes the product at its final price and takes it off the
// market for good.
func (d *DB) FinalizeSale(ctx context.Context, productID string, finalPrice float64) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("is_available = ?", false).
		Set("is_auction = ?", false).
		Set("base_price = ?", finalPrice).
		Set("applied_price = ?", finalPrice).
		Set("discount = ?", 0.0).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", productID).
		Exec(ctx)
	return err
}

// UpdateUncaptured applies a product-management edit to pricing and
// availability, refusing while the product is captured by an auction.
// The auction engine is the sole writer of those fields during capture.
func (d *DB) UpdateUncaptured(ctx context.Context, p *models.Product) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(p).
		Column("title", "description", "base_price", "discount", "applied_price",
			"is_available", "updated_at").
		Where("id = ?", p.ID).
		Where("is_auction = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// SetAvailability toggles is_available, used by order-creation
// compensation.
func (d *DB) SetAvailability(ctx context.Context, productID string, available bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("is_available = ?", available).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", productID).
		Exec(ctx)
	return err
}
