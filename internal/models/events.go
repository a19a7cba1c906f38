package models

import "time"

// PriceUpdateEvent is broadcast to observers every time a bid moves the
// price. Delivery is fire-and-forget; a lost event never fails a bid.
type PriceUpdateEvent struct {
	AuctionID       string    `json:"auction_id"`
	ProductID       string    `json:"product_id"`
	VariablePrice   float64   `json:"variable_price"`
	HighestBidderID string    `json:"highest_bidder_id"`
	At              time.Time `json:"at"`
}

// AuctionStatusEvent is broadcast when the sweep opens or closes an
// auction.
type AuctionStatusEvent struct {
	AuctionID  string        `json:"auction_id"`
	ProductID  string        `json:"product_id"`
	Status     AuctionStatus `json:"status"`
	WinnerID   string        `json:"winner_id,omitempty"`
	FinalPrice float64       `json:"final_price,omitempty"`
	At         time.Time     `json:"at"`
}
