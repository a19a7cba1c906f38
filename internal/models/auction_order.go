package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
)

// AuctionOrder is the join/payment record for one (user, auction) pair.
// The unique constraint on that pair enforces one join attempt per user
// per auction for the lifetime of the auction; rows are never deleted.
type AuctionOrder struct {
	bun.BaseModel `bun:"table:auction_orders"`

	ID            string        `bun:"id,pk" json:"id"`
	AuctionID     string        `bun:"auction_id,notnull,unique:auction_user" json:"auction_id"`
	UserID        string        `bun:"user_id,notnull,unique:auction_user" json:"user_id"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`

	// Gateway correlation data, cleared once the payment is confirmed.
	PayURL        string `bun:"pay_url,nullzero" json:"pay_url,omitempty"`
	PaymentIntent string `bun:"payment_intent,nullzero" json:"-"`

	// Shipping address snapshotted from the user's profile at join time.
	// Later edits to the profile must not alter a pending auction win.
	ShippingAddress ShippingAddress `bun:"embed:shipping_" json:"shipping_address"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type ShippingAddress struct {
	Alias      string `bun:"alias,nullzero" json:"alias,omitempty"`
	Street     string `bun:"street,nullzero" json:"street,omitempty"`
	Region     string `bun:"region,nullzero" json:"region,omitempty"`
	City       string `bun:"city,nullzero" json:"city,omitempty"`
	Country    string `bun:"country,nullzero" json:"country,omitempty"`
	PostalCode string `bun:"postal_code,nullzero" json:"postal_code,omitempty"`
	Phone      string `bun:"phone,nullzero" json:"phone,omitempty"`
}
