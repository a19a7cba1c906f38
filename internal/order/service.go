package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
	"ms-auctions/internal/order/invoice"
	"ms-auctions/internal/utils"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrIntegrity: a closed, won auction without a matching paid join
	// record. Should not occur if settlement is correct.
	ErrIntegrity = errors.New("integrity fault")
	// ErrNotify: invoice generation or winner notification failed; the
	// order creation was compensated.
	ErrNotify = errors.New("failed to notify winner")
)

type DBLayer interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByAuction(ctx context.Context, auctionID string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
}

type AuctionStore interface {
	GetAuctionByID(ctx context.Context, id string) (*models.Auction, error)
	GetAuctionOrder(ctx context.Context, auctionID, userID string) (*models.AuctionOrder, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type ProductStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	SetAvailability(ctx context.Context, productID string, available bool) error
}

type InvoiceGenerator interface {
	Generate(order *models.Order, buyerName, productTitle string) (*invoice.Invoice, error)
}

type Mailer interface {
	SendWinnerNotification(ctx context.Context, to string, inv *invoice.Invoice) error
}

type Publisher interface {
	PublishOrderCreated(o models.Order)
}

// NoopPublisher discards events; used in tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(models.Order) {}

// Service materializes closed, won auctions into standard sales orders.
type Service struct {
	DB       DBLayer
	Auctions AuctionStore
	Products ProductStore
	Invoices InvoiceGenerator
	Mail     Mailer
	Events   Publisher
	logger   *logger.Logger
}

func NewService(dbl DBLayer, auctions AuctionStore, products ProductStore, invoices InvoiceGenerator, mail Mailer, events Publisher, log *logger.Logger) *Service {
	if events == nil {
		events = NoopPublisher{}
	}
	return &Service{
		DB:       dbl,
		Auctions: auctions,
		Products: products,
		Invoices: invoices,
		Mail:     mail,
		Events:   events,
		logger:   log,
	}
}

// MaterializeAuctionOrder converts a closed, won auction into a sales
// order at the final variable price, using the winner's shipping address
// snapshotted at join time. If invoice generation or the winner
// notification fails, the created order is deleted and the product's
// availability restored, mirroring the non-auction order failure policy.
func (s *Service) MaterializeAuctionOrder(ctx context.Context, auctionID string) (*models.Order, *invoice.Invoice, error) {
	a, err := s.Auctions.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status != models.AuctionClosed || a.WinnerID == "" {
		return nil, nil, fmt.Errorf("%w: auction has no winner", ErrNotFound)
	}

	if existing, err := s.DB.GetOrderByAuction(ctx, auctionID); err == nil {
		return nil, nil, fmt.Errorf("%w: order %s already exists for this auction", ErrConflict, existing.ID)
	}

	ao, err := s.Auctions.GetAuctionOrder(ctx, auctionID, a.WinnerID)
	if err != nil || ao.PaymentStatus != models.PaymentPaid {
		// Settlement produced a winner without a paid join record.
		s.logger.Error("ORDER", fmt.Sprintf("Auction %s won by %s but no paid join record found", auctionID, a.WinnerID))
		return nil, nil, fmt.Errorf("%w: winner has no paid join record", ErrIntegrity)
	}

	winner, err := s.Auctions.GetUserByID(ctx, a.WinnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: winner", ErrNotFound)
	}
	product, err := s.Products.GetProductByID(ctx, a.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: product", ErrNotFound)
	}
	availabilityBefore := product.IsAvailable

	o := &models.Order{
		ID:              uuid.New().String(),
		UserID:          a.WinnerID,
		ProductID:       a.ProductID,
		AuctionID:       a.ID,
		OrderCode:       fmt.Sprintf("%s-%s", winner.UserName, utils.GenerateOTP(3)),
		TotalPrice:      a.VariablePrice,
		PaymentMethod:   "Auction",
		Status:          models.OrderPlaced,
		ShippingAddress: ao.ShippingAddress,
		PhoneNumber:     winner.PhoneNumber,
	}

	if err := s.DB.CreateOrder(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}
	if err := s.Products.SetAvailability(ctx, a.ProductID, false); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Failed to mark product %s unavailable: %v", a.ProductID, err))
	}

	inv, err := s.Invoices.Generate(o, winner.UserName, product.Title)
	if err != nil {
		s.compensate(ctx, o, availabilityBefore)
		return nil, nil, fmt.Errorf("%w: invoice generation failed: %v", ErrNotify, err)
	}

	if err := s.Mail.SendWinnerNotification(ctx, winner.Email, inv); err != nil {
		s.compensate(ctx, o, availabilityBefore)
		return nil, nil, fmt.Errorf("%w: %v", ErrNotify, err)
	}

	s.Events.PublishOrderCreated(*o)
	s.logger.Info("ORDER", fmt.Sprintf("Order %s materialized from auction %s for winner %s at %.2f", o.ID, a.ID, a.WinnerID, o.TotalPrice))
	return o, inv, nil
}

func (s *Service) compensate(ctx context.Context, o *models.Order, availabilityBefore bool) {
	if err := s.DB.DeleteOrder(ctx, o.ID); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Compensation failed to delete order %s: %v", o.ID, err))
	}
	if err := s.Products.SetAvailability(ctx, o.ProductID, availabilityBefore); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Compensation failed to restore product %s availability: %v", o.ProductID, err))
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return o, nil
}

func (s *Service) MyOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}
