package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Product is the portion of the catalog entry the auction engine owns.
// While IsAuction is set the pricing and availability fields are under
// exclusive control of the auction engine; normal product-management
// flows must refuse to touch them.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID           string  `bun:"id,pk" json:"id"`
	ArtistID     string  `bun:"artist_id,notnull" json:"artist_id"`
	Title        string  `bun:"title,notnull" json:"title"`
	Description  string  `bun:"description,nullzero" json:"description,omitempty"`
	BasePrice    float64 `bun:"base_price,notnull" json:"base_price"`
	Discount     float64 `bun:"discount" json:"discount"`
	AppliedPrice float64 `bun:"applied_price,notnull" json:"applied_price"`
	IsAvailable  bool    `bun:"is_available" json:"is_available"`
	IsAuction    bool    `bun:"is_auction" json:"is_auction"`
	IsEvent      bool    `bun:"is_event" json:"is_event"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// PriceSnapshot captures a product's pricing before an auction takes it
// over, so a bid-less close can restore it exactly.
type PriceSnapshot struct {
	BasePrice    float64 `json:"base_price"`
	Discount     float64 `json:"discount"`
	AppliedPrice float64 `json:"applied_price"`
}

func (p *Product) Snapshot() PriceSnapshot {
	return PriceSnapshot{
		BasePrice:    p.BasePrice,
		Discount:     p.Discount,
		AppliedPrice: p.AppliedPrice,
	}
}
