package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"ms-auctions/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- AUCTIONS ----------------

func (d *DB) CreateAuction(ctx context.Context, a *models.Auction) error {
	_, err := d.Bun.NewInsert().Model(a).Exec(ctx)
	return err
}

func (d *DB) GetAuctionByID(ctx context.Context, id string) (*models.Auction, error) {
	var a models.Auction
	err := d.Bun.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetVisibleAuction fetches an auction for a public viewer. Closed
// auctions are not publicly visible.
func (d *DB) GetVisibleAuction(ctx context.Context, id string) (*models.Auction, error) {
	var a models.Auction
	err := d.Bun.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.AuctionStatus{models.AuctionNotStarted, models.AuctionOpen})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) ListAuctions(ctx context.Context, limit, offset int) ([]models.Auction, error) {
	var auctions []models.Auction
	err := d.Bun.NewSelect().
		Model(&auctions).
		Order("begin_date ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	return auctions, err
}

func (d *DB) ListAuctionsByArtist(ctx context.Context, artistID string) ([]models.Auction, error) {
	var auctions []models.Auction
	err := d.Bun.NewSelect().
		Model(&auctions).
		Where("artist_id = ?", artistID).
		Order("begin_date ASC").
		Scan(ctx)
	return auctions, err
}

// UpdateAuctionPreOpen saves edits to an auction, guarded so the write
// only lands while the auction has not started. Returns false when the
// status advanced between the caller's check and the write.
func (d *DB) UpdateAuctionPreOpen(ctx context.Context, a *models.Auction) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(a).
		Column("product_id", "begin_date", "end_date", "duration_days",
			"begin_price", "variable_price",
			"old_base_price", "old_discount", "old_applied_price", "updated_at").
		Where("id = ?", a.ID).
		Where("status = ?", models.AuctionNotStarted).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ---------------- SWEEP TRANSITIONS ----------------

func (d *DB) ListDueToOpen(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := d.Bun.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionNotStarted).
		Where("begin_date <= ?", now).
		Scan(ctx)
	return auctions, err
}

func (d *DB) ListDueToClose(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := d.Bun.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionOpen).
		Where("end_date < ?", now).
		Scan(ctx)
	return auctions, err
}

// OpenAuction flips not-started -> open. The status predicate makes the
// sweep idempotent and re-entrant: a second sweep (or a concurrent one)
// matches zero rows.
func (d *DB) OpenAuction(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionOpen).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.AuctionNotStarted).
		Where("begin_date <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// CloseAndSettle closes an open, expired auction and applies the product
// settlement in one transaction: either the product is sold at the final
// variable price, or it is released back to its pre-auction pricing
// snapshot. Partial application (closed status without the product
// mutation, or vice versa) cannot be observed.
//
// Returns the settled auction and true when this call performed the
// transition; false when the auction was not open / not yet due (e.g. a
// concurrent sweep already closed it).
func (d *DB) CloseAndSettle(ctx context.Context, id string, now time.Time) (*models.Auction, bool, error) {
	var settled models.Auction
	applied := false

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Auction)(nil)).
			Set("status = ?", models.AuctionClosed).
			Set("winner_id = highest_bidder_id").
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("status = ?", models.AuctionOpen).
			Where("end_date < ?", now).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Already closed, not yet due, or a late status change.
			return nil
		}

		if err := tx.NewSelect().
			Model(&settled).
			Where("id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		if settled.WinnerID != "" {
			// Sold: price fixed at the final bid, product off the market.
			_, err = tx.NewUpdate().
				Model((*models.Product)(nil)).
				Set("is_available = ?", false).
				Set("is_auction = ?", false).
				Set("base_price = ?", settled.VariablePrice).
				Set("applied_price = ?", settled.VariablePrice).
				Set("discount = ?", 0.0).
				Set("updated_at = ?", now).
				Where("id = ?", settled.ProductID).
				Exec(ctx)
		} else {
			// No bids: restore the pre-auction pricing snapshot.
			_, err = tx.NewUpdate().
				Model((*models.Product)(nil)).
				Set("is_auction = ?", false).
				Set("base_price = ?", settled.OldBasePrice).
				Set("discount = ?", settled.OldDiscount).
				Set("applied_price = ?", settled.OldAppliedPrice).
				Set("updated_at = ?", now).
				Where("id = ?", settled.ProductID).
				Exec(ctx)
		}
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, nil
	}
	return &settled, true, nil
}

// ---------------- BIDS ----------------

// PlaceBid is the price ratchet: a single conditional update, not a
// read-modify-write. The bid lands only while the auction is open and
// the amount strictly exceeds the current variable price, so two
// concurrent bids can never both succeed against the same price and a
// tie never wins.
func (d *DB) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("variable_price = ?", amount).
		Set("highest_bidder_id = ?", bidderID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", auctionID).
		Where("status = ?", models.AuctionOpen).
		Where("variable_price < ?", amount).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ---------------- DELETE ----------------

// DeleteAuctionIfUnjoined removes an auction and releases its product in
// one transaction. The participant check and the delete are a single
// conditional statement, so a join or payment landing concurrently
// cannot race the auction into deletion.
func (d *DB) DeleteAuctionIfUnjoined(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var a models.Auction
		if err := tx.NewSelect().
			Model(&a).
			Where("id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*models.Auction)(nil)).
			Where("id = ?", id).
			Where("status = ?", models.AuctionNotStarted).
			Where("NOT EXISTS (SELECT 1 FROM auction_orders WHERE auction_id = ?)", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*models.Product)(nil)).
			Set("is_auction = ?", false).
			Set("base_price = ?", a.OldBasePrice).
			Set("discount = ?", a.OldDiscount).
			Set("applied_price = ?", a.OldAppliedPrice).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", a.ProductID).
			Exec(ctx)
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// ---------------- JOIN / PAYMENT RECORDS ----------------

func (d *DB) CreateAuctionOrder(ctx context.Context, ao *models.AuctionOrder) error {
	_, err := d.Bun.NewInsert().Model(ao).Exec(ctx)
	return err
}

func (d *DB) GetAuctionOrder(ctx context.Context, auctionID, userID string) (*models.AuctionOrder, error) {
	var ao models.AuctionOrder
	err := d.Bun.NewSelect().
		Model(&ao).
		Where("auction_id = ?", auctionID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ao, nil
}

func (d *DB) GetAuctionOrderByID(ctx context.Context, id string) (*models.AuctionOrder, error) {
	var ao models.AuctionOrder
	err := d.Bun.NewSelect().
		Model(&ao).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ao, nil
}

// SetPaymentSession persists the gateway checkout url and payment
// reference on a still-pending join record.
func (d *DB) SetPaymentSession(ctx context.Context, orderID, payURL, paymentIntent string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.AuctionOrder)(nil)).
		Set("pay_url = ?", payURL).
		Set("payment_intent = ?", paymentIntent).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Where("payment_status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// MarkAuctionOrderPaid transitions Pending -> Paid and clears the pay
// url. The status predicate makes webhook replays land exactly once:
// the second delivery matches zero rows.
func (d *DB) MarkAuctionOrderPaid(ctx context.Context, orderID, paymentIntent string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.AuctionOrder)(nil)).
		Set("payment_status = ?", models.PaymentPaid).
		Set("pay_url = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Where("payment_status = ?", models.PaymentPending)
	if paymentIntent != "" {
		q = q.Set("payment_intent = ?", paymentIntent)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// AddParticipant inserts into the participant set. ON CONFLICT DO
// NOTHING keeps the set semantics under webhook replays.
func (d *DB) AddParticipant(ctx context.Context, auctionID, userID string) error {
	p := models.AuctionParticipant{
		AuctionID: auctionID,
		UserID:    userID,
		JoinedAt:  time.Now(),
	}
	_, err := d.Bun.NewInsert().
		Model(&p).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (d *DB) CountParticipants(ctx context.Context, auctionID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.AuctionParticipant)(nil)).
		Where("auction_id = ?", auctionID).
		Count(ctx)
}

func (d *DB) CountJoinRequests(ctx context.Context, auctionID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.AuctionOrder)(nil)).
		Where("auction_id = ?", auctionID).
		Count(ctx)
}

// ---------------- USERS ----------------

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.Bun.NewSelect().
		Model(&u).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) GetAddress(ctx context.Context, userID, addressID string) (*models.Address, error) {
	var a models.Address
	err := d.Bun.NewSelect().
		Model(&a).
		Where("id = ?", addressID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// IsNoRows reports whether err is the driver's empty-result error.
func IsNoRows(err error) bool {
	return err == sql.ErrNoRows
}

// IsUniqueViolation matches duplicate-key errors from both the Postgres
// driver and the sqlite driver used in tests.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}
