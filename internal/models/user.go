package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `bun:"id,pk" json:"id"`
	Email       string    `bun:"email,unique,notnull" json:"email"`
	UserName    string    `bun:"user_name,notnull" json:"user_name"`
	PhoneNumber string    `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Address is one entry in a user's address book. Join requests reference
// an address by id and copy it into the AuctionOrder as a snapshot.
type Address struct {
	bun.BaseModel `bun:"table:addresses"`

	ID         string `bun:"id,pk" json:"id"`
	UserID     string `bun:"user_id,notnull" json:"user_id"`
	Alias      string `bun:"alias,nullzero" json:"alias,omitempty"`
	Street     string `bun:"street,notnull" json:"street"`
	Region     string `bun:"region,nullzero" json:"region,omitempty"`
	City       string `bun:"city,notnull" json:"city"`
	Country    string `bun:"country,notnull" json:"country"`
	PostalCode string `bun:"postal_code,nullzero" json:"postal_code,omitempty"`
	Phone      string `bun:"phone,nullzero" json:"phone,omitempty"`
}

func (a *Address) ShippingSnapshot() ShippingAddress {
	return ShippingAddress{
		Alias:      a.Alias,
		Street:     a.Street,
		Region:     a.Region,
		City:       a.City,
		Country:    a.Country,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
	}
}
