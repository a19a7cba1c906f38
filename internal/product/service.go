package product

import (
	"context"
	"errors"
	"fmt"

	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
)

var (
	ErrNotFound = errors.New("product not found")
	// ErrCaptured: the product's pricing and availability are under
	// exclusive auction control and cannot be edited directly.
	ErrCaptured    = errors.New("product is captured by an auction")
	ErrNotCaptured = errors.New("product is not captured by an auction")
)

type DBLayer interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	CaptureForAuction(ctx context.Context, productID, artistID string, beginPrice float64) (models.PriceSnapshot, bool, error)
	RepriceCaptured(ctx context.Context, productID string, price float64) (bool, error)
	ReleaseFromAuction(ctx context.Context, productID string, snap models.PriceSnapshot) error
	FinalizeSale(ctx context.Context, productID string, finalPrice float64) error
	UpdateUncaptured(ctx context.Context, p *models.Product) (bool, error)
	SetAvailability(ctx context.Context, productID string, available bool) error
}

// Service is the product ledger. The auction engine consumes it through
// the four-operation contract (find, reserve, reprice, release); the
// product-management flow consumes UpdateProduct, which refuses to touch
// captured pricing fields.
type Service struct {
	DB     DBLayer
	logger *logger.Logger
}

func NewService(dbl DBLayer, log *logger.Logger) *Service {
	return &Service{DB: dbl, logger: log}
}

func (s *Service) Find(ctx context.Context, productID string) (*models.Product, error) {
	p, err := s.DB.GetProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	return p, nil
}

// Reserve captures the product for an auction and returns the pricing
// snapshot taken just before capture.
func (s *Service) Reserve(ctx context.Context, productID, artistID string, beginPrice float64) (models.PriceSnapshot, error) {
	snap, captured, err := s.DB.CaptureForAuction(ctx, productID, artistID, beginPrice)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("failed to capture product %s: %w", productID, err)
	}
	if !captured {
		return models.PriceSnapshot{}, fmt.Errorf("product %s is not available for capture", productID)
	}
	s.logger.Info("PRODUCT", fmt.Sprintf("Product %s captured for auction at %.2f", productID, beginPrice))
	return snap, nil
}

// Reprice re-primes a captured product's base and applied price when the
// auction's begin price changes pre-open.
func (s *Service) Reprice(ctx context.Context, productID string, price float64) error {
	ok, err := s.DB.RepriceCaptured(ctx, productID, price)
	if err != nil {
		return fmt.Errorf("failed to reprice product %s: %w", productID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCaptured, productID)
	}
	return nil
}

// Release returns a captured product to normal product-management
// control, restoring its pre-auction pricing.
func (s *Service) Release(ctx context.Context, productID string, snap models.PriceSnapshot) error {
	if err := s.DB.ReleaseFromAuction(ctx, productID, snap); err != nil {
		return fmt.Errorf("failed to release product %s: %w", productID, err)
	}
	s.logger.Info("PRODUCT", fmt.Sprintf("Product %s released from auction", productID))
	return nil
}

// FinalizeSale fixes the product at its hammer price and marks it
// permanently unavailable.
func (s *Service) FinalizeSale(ctx context.Context, productID string, finalPrice float64) error {
	if err := s.DB.FinalizeSale(ctx, productID, finalPrice); err != nil {
		return fmt.Errorf("failed to finalize sale of product %s: %w", productID, err)
	}
	s.logger.Info("PRODUCT", fmt.Sprintf("Product %s sold at %.2f", productID, finalPrice))
	return nil
}

type UpdateProductRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	BasePrice   *float64 `json:"base_price,omitempty"`
	Discount    *float64 `json:"discount,omitempty"`
	IsAvailable *bool    `json:"is_available,omitempty"`
}

// UpdateProduct is the normal product-management edit. While the product
// is captured by an auction the write is refused outright: the auction
// engine is the only writer of pricing and availability until release.
func (s *Service) UpdateProduct(ctx context.Context, productID, artistID string, req UpdateProductRequest) (*models.Product, error) {
	p, err := s.DB.GetProductByID(ctx, productID)
	if err != nil || p.ArtistID != artistID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	if p.IsAuction {
		return nil, fmt.Errorf("%w: %s", ErrCaptured, productID)
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.BasePrice != nil {
		p.BasePrice = *req.BasePrice
	}
	if req.Discount != nil {
		p.Discount = *req.Discount
	}
	p.AppliedPrice = p.BasePrice - p.BasePrice*(p.Discount/100)
	if req.IsAvailable != nil {
		p.IsAvailable = *req.IsAvailable
	}

	ok, err := s.DB.UpdateUncaptured(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", productID, err)
	}
	if !ok {
		// An auction captured the product between the check and the
		// write.
		return nil, fmt.Errorf("%w: %s", ErrCaptured, productID)
	}
	return p, nil
}
