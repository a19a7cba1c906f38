package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPlaced    OrderStatus = "Placed"
	OrderPaid      OrderStatus = "Paid"
	OrderDelivered OrderStatus = "Delivered"
)

// Order is a standard sales order. Auction wins are materialized into
// one of these at the final hammer price.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string      `bun:"id,pk" json:"id"`
	UserID        string      `bun:"user_id,notnull" json:"user_id"`
	ProductID     string      `bun:"product_id,notnull" json:"product_id"`
	AuctionID     string      `bun:"auction_id,nullzero" json:"auction_id,omitempty"`
	OrderCode     string      `bun:"order_code,notnull" json:"order_code"`
	TotalPrice    float64     `bun:"total_price,notnull" json:"total_price"`
	PaymentMethod string      `bun:"payment_method,notnull" json:"payment_method"`
	Status        OrderStatus `bun:"status,notnull" json:"status"`

	ShippingAddress ShippingAddress `bun:"embed:shipping_" json:"shipping_address"`
	PhoneNumber     string          `bun:"phone_number,nullzero" json:"phone_number,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
