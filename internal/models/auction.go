package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AuctionStatus is the auction lifecycle state. Transitions only move
// forward: not-started -> open -> closed.
type AuctionStatus string

const (
	AuctionNotStarted AuctionStatus = "not-started"
	AuctionOpen       AuctionStatus = "open"
	AuctionClosed     AuctionStatus = "closed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition. Both the HTTP handlers and the scheduled sweep
// consult this instead of comparing status strings ad hoc.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case AuctionNotStarted:
		return next == AuctionOpen
	case AuctionOpen:
		return next == AuctionClosed
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionClosed
}

func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionNotStarted, AuctionOpen, AuctionClosed:
		return true
	}
	return false
}

type Auction struct {
	bun.BaseModel `bun:"table:auctions"`

	ID              string        `bun:"id,pk" json:"id"`
	ProductID       string        `bun:"product_id,notnull" json:"product_id"`
	ArtistID        string        `bun:"artist_id,notnull" json:"artist_id"`
	Status          AuctionStatus `bun:"status,notnull" json:"status"`
	BeginDate       time.Time     `bun:"begin_date,notnull" json:"begin_date"`
	EndDate         time.Time     `bun:"end_date,notnull" json:"end_date"`
	DurationDays    int           `bun:"duration_days,notnull" json:"duration_days"`
	BeginPrice      float64       `bun:"begin_price,notnull" json:"begin_price"`
	VariablePrice   float64       `bun:"variable_price,notnull" json:"variable_price"`
	HighestBidderID string        `bun:"highest_bidder_id,nullzero" json:"highest_bidder_id,omitempty"`
	WinnerID        string        `bun:"winner_id,nullzero" json:"winner_id,omitempty"`

	// Snapshot of the product's pricing before this auction captured it.
	// Needed to roll the product back when the auction closes without bids.
	// Never serialized to clients.
	OldBasePrice    float64 `bun:"old_base_price" json:"-"`
	OldDiscount     float64 `bun:"old_discount" json:"-"`
	OldAppliedPrice float64 `bun:"old_applied_price" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// AuctionParticipant records a user who completed the join payment and
// is eligible to bid. The composite primary key gives the participant
// set its set semantics: webhook replays cannot duplicate an entry.
type AuctionParticipant struct {
	bun.BaseModel `bun:"table:auction_participants"`

	AuctionID string    `bun:"auction_id,pk" json:"auction_id"`
	UserID    string    `bun:"user_id,pk" json:"user_id"`
	JoinedAt  time.Time `bun:"joined_at,notnull,default:current_timestamp" json:"joined_at"`
}
