package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-auctions/internal/auction/db"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
)

type DBLayer interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuctionByID(ctx context.Context, id string) (*models.Auction, error)
	GetVisibleAuction(ctx context.Context, id string) (*models.Auction, error)
	ListAuctions(ctx context.Context, limit, offset int) ([]models.Auction, error)
	ListAuctionsByArtist(ctx context.Context, artistID string) ([]models.Auction, error)
	UpdateAuctionPreOpen(ctx context.Context, a *models.Auction) (bool, error)

	ListDueToOpen(ctx context.Context, now time.Time) ([]models.Auction, error)
	ListDueToClose(ctx context.Context, now time.Time) ([]models.Auction, error)
	OpenAuction(ctx context.Context, id string, now time.Time) (bool, error)
	CloseAndSettle(ctx context.Context, id string, now time.Time) (*models.Auction, bool, error)

	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (bool, error)
	DeleteAuctionIfUnjoined(ctx context.Context, id string) (bool, error)

	CreateAuctionOrder(ctx context.Context, ao *models.AuctionOrder) error
	GetAuctionOrder(ctx context.Context, auctionID, userID string) (*models.AuctionOrder, error)
	GetAuctionOrderByID(ctx context.Context, id string) (*models.AuctionOrder, error)
	SetPaymentSession(ctx context.Context, orderID, payURL, paymentIntent string) (bool, error)
	MarkAuctionOrderPaid(ctx context.Context, orderID, paymentIntent string) (bool, error)
	AddParticipant(ctx context.Context, auctionID, userID string) error
	CountParticipants(ctx context.Context, auctionID string) (int, error)
	CountJoinRequests(ctx context.Context, auctionID string) (int, error)

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetAddress(ctx context.Context, userID, addressID string) (*models.Address, error)
}

// ProductLedger is the auction engine's entire contract with the product
// subsystem outside of close settlement (which runs inside the store
// transaction, see db.CloseAndSettle).
type ProductLedger interface {
	Find(ctx context.Context, productID string) (*models.Product, error)
	Reserve(ctx context.Context, productID, artistID string, beginPrice float64) (models.PriceSnapshot, error)
	Reprice(ctx context.Context, productID string, price float64) error
	Release(ctx context.Context, productID string, snap models.PriceSnapshot) error
}

type PaymentGateway interface {
	CreateJoinCheckoutSession(ctx context.Context, customerEmail string, metadata map[string]string) (payURL, paymentRef string, err error)
	Refund(ctx context.Context, paymentRef string) error
}

type Locker interface {
	LockAuction(ctx context.Context, auctionID, owner string) (bool, error)
	UnlockAuction(ctx context.Context, auctionID, owner string) error
}

// Notifier broadcasts auction events to observers. Implementations are
// fire-and-forget: a failed broadcast must never fail the bid that
// triggered it.
type Notifier interface {
	PublishPriceUpdate(ev models.PriceUpdateEvent)
	PublishAuctionStatus(ev models.AuctionStatusEvent)
}

// NoopNotifier discards all events; used in tests.
type NoopNotifier struct{}

func (NoopNotifier) PublishPriceUpdate(models.PriceUpdateEvent) {}

func (NoopNotifier) PublishAuctionStatus(models.AuctionStatusEvent) {}

type Service struct {
	DB      DBLayer
	Ledger  ProductLedger
	Gateway PaymentGateway
	Locker  Locker
	Notify  Notifier

	logger          *logger.Logger
	maxDurationDays int
	now             func() time.Time
}

func NewService(dbl DBLayer, ledger ProductLedger, gateway PaymentGateway, locker Locker, notify Notifier, log *logger.Logger, maxDurationDays int) *Service {
	if notify == nil {
		notify = NoopNotifier{}
	}
	return &Service{
		DB:              dbl,
		Ledger:          ledger,
		Gateway:         gateway,
		Locker:          locker,
		Notify:          notify,
		logger:          log,
		maxDurationDays: maxDurationDays,
		now:             time.Now,
	}
}

// SetClock overrides the service clock; tests drive the sweep with it.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type CreateAuctionRequest struct {
	ProductID    string    `json:"product_id"`
	BeginPrice   float64   `json:"begin_price"`
	BeginDate    time.Time `json:"begin_date"`
	DurationDays int       `json:"duration_days"`
}

type UpdateAuctionRequest struct {
	ProductID    *string    `json:"product_id,omitempty"`
	BeginPrice   *float64   `json:"begin_price,omitempty"`
	BeginDate    *time.Time `json:"begin_date,omitempty"`
	DurationDays *int       `json:"duration_days,omitempty"`
}

func (s *Service) validateDuration(days int) error {
	if days < 1 || days > s.maxDurationDays {
		return fmt.Errorf("%w: duration must be between 1 and %d days", ErrConflict, s.maxDurationDays)
	}
	return nil
}

// ---------------- CREATE ----------------

// CreateAuction captures the product for the artist's new auction: the
// product's pricing is snapshotted, its discount zeroed and its base and
// applied prices primed to the begin price. Capture is a conditional
// update in the ledger, so two concurrent creates for the same product
// cannot both succeed.
func (s *Service) CreateAuction(ctx context.Context, artistID string, req CreateAuctionRequest) (*models.Auction, error) {
	if err := s.validateDuration(req.DurationDays); err != nil {
		return nil, err
	}
	if req.BeginPrice <= 0 {
		return nil, fmt.Errorf("%w: begin price must be positive", ErrConflict)
	}

	product, err := s.Ledger.Find(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: product", ErrNotFound)
	}
	if product.ArtistID != artistID {
		// Caller is not authorized to see another artist's product.
		return nil, fmt.Errorf("%w: product", ErrNotFound)
	}
	if !product.IsAvailable {
		return nil, fmt.Errorf("%w: %s is not available", ErrConflict, product.Title)
	}
	if product.IsEvent {
		return nil, fmt.Errorf("%w: %s is already in an event", ErrConflict, product.Title)
	}
	if product.IsAuction {
		return nil, fmt.Errorf("%w: %s is already in another auction", ErrConflict, product.Title)
	}

	snap, err := s.Ledger.Reserve(ctx, req.ProductID, artistID, req.BeginPrice)
	if err != nil {
		// Lost the capture race, or the product changed under us.
		return nil, fmt.Errorf("%w: product could not be captured: %v", ErrConflict, err)
	}

	now := s.now()
	a := &models.Auction{
		ID:              uuid.New().String(),
		ProductID:       req.ProductID,
		ArtistID:        artistID,
		Status:          models.AuctionNotStarted,
		BeginDate:       req.BeginDate,
		EndDate:         req.BeginDate.AddDate(0, 0, req.DurationDays),
		DurationDays:    req.DurationDays,
		BeginPrice:      req.BeginPrice,
		VariablePrice:   req.BeginPrice,
		OldBasePrice:    snap.BasePrice,
		OldDiscount:     snap.Discount,
		OldAppliedPrice: snap.AppliedPrice,
		CreatedAt:       now,
	}

	if err := s.DB.CreateAuction(ctx, a); err != nil {
		// Compensate: hand the product back before surfacing the error.
		if relErr := s.Ledger.Release(ctx, req.ProductID, snap); relErr != nil {
			s.logger.Error("AUCTION", fmt.Sprintf("Failed to release product %s after create failure: %v", req.ProductID, relErr))
		}
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	s.logger.LogAuction("CREATE", a.ID, fmt.Sprintf("product %s captured at begin price %.2f", a.ProductID, a.BeginPrice))
	return a, nil
}

// ---------------- READS ----------------

func (s *Service) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := s.DB.GetAuctionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	return a, nil
}

// ViewAuction is the public read: closed auctions are not visible.
func (s *Service) ViewAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := s.DB.GetVisibleAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	return a, nil
}

func (s *Service) ListAuctions(ctx context.Context, limit, offset int) ([]models.Auction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.DB.ListAuctions(ctx, limit, offset)
}

func (s *Service) MyAuctions(ctx context.Context, artistID string) ([]models.Auction, error) {
	return s.DB.ListAuctionsByArtist(ctx, artistID)
}

// GetMyAuction returns an auction scoped to its owning artist.
func (s *Service) GetMyAuction(ctx context.Context, id, artistID string) (*models.Auction, error) {
	a, err := s.DB.GetAuctionByID(ctx, id)
	if err != nil || a.ArtistID != artistID {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	return a, nil
}

// ---------------- EDIT ----------------

// UpdateAuction edits an auction that has not started. artistID scopes
// the lookup for artist callers; admins pass an empty artistID.
// Changing the begin price re-primes the variable price and the
// product's price fields. Changing the product releases the old one
// (restoring its snapshot) and captures the new one under the same
// availability checks as create.
func (s *Service) UpdateAuction(ctx context.Context, auctionID, artistID string, req UpdateAuctionRequest) (*models.Auction, error) {
	a, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	if artistID != "" && a.ArtistID != artistID {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status != models.AuctionNotStarted {
		return nil, fmt.Errorf("%w: auction has already started", ErrConflict)
	}

	// Validate the whole request before any ledger side effect: a
	// rejected edit must leave every product exactly as it was.
	if req.BeginPrice != nil && *req.BeginPrice <= 0 {
		return nil, fmt.Errorf("%w: begin price must be positive", ErrConflict)
	}
	if req.DurationDays != nil {
		if err := s.validateDuration(*req.DurationDays); err != nil {
			return nil, err
		}
	}

	originalPrice := a.BeginPrice
	finalPrice := a.BeginPrice
	if req.BeginPrice != nil {
		finalPrice = *req.BeginPrice
	}

	oldProductID := a.ProductID
	oldSnap := models.PriceSnapshot{
		BasePrice:    a.OldBasePrice,
		Discount:     a.OldDiscount,
		AppliedPrice: a.OldAppliedPrice,
	}

	var newProduct *models.Product
	if req.ProductID != nil && *req.ProductID != a.ProductID {
		newProduct, err = s.Ledger.Find(ctx, *req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		if newProduct.ArtistID != a.ArtistID {
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		if !newProduct.IsAvailable {
			return nil, fmt.Errorf("%w: %s is not available", ErrConflict, newProduct.Title)
		}
		if newProduct.IsEvent {
			return nil, fmt.Errorf("%w: %s is already in an event", ErrConflict, newProduct.Title)
		}
		if newProduct.IsAuction {
			return nil, fmt.Errorf("%w: %s is already in another auction", ErrConflict, newProduct.Title)
		}
	}

	// Validation done, side effects start here.
	repriced := false
	if req.BeginPrice != nil {
		a.BeginPrice = finalPrice
		a.VariablePrice = finalPrice
		if err := s.Ledger.Reprice(ctx, a.ProductID, finalPrice); err != nil {
			return nil, fmt.Errorf("failed to re-prime product price: %w", err)
		}
		repriced = true
	}

	swapped := false
	var newSnap models.PriceSnapshot
	if newProduct != nil {
		// Capture the new product first so a lost race leaves the
		// auction untouched, then release the old one.
		newSnap, err = s.Ledger.Reserve(ctx, newProduct.ID, a.ArtistID, finalPrice)
		if err != nil {
			if repriced {
				if repErr := s.Ledger.Reprice(ctx, oldProductID, originalPrice); repErr != nil {
					s.logger.Error("AUCTION", fmt.Sprintf("Failed to restore price of product %s: %v", oldProductID, repErr))
				}
			}
			return nil, fmt.Errorf("%w: product could not be captured: %v", ErrConflict, err)
		}
		if err := s.Ledger.Release(ctx, oldProductID, oldSnap); err != nil {
			s.logger.Error("AUCTION", fmt.Sprintf("Failed to release product %s during swap: %v", oldProductID, err))
		}

		a.ProductID = newProduct.ID
		a.OldBasePrice = newSnap.BasePrice
		a.OldDiscount = newSnap.Discount
		a.OldAppliedPrice = newSnap.AppliedPrice
		swapped = true
	}

	if req.DurationDays != nil {
		a.DurationDays = *req.DurationDays
	}
	if req.BeginDate != nil {
		a.BeginDate = *req.BeginDate
	}
	a.EndDate = a.BeginDate.AddDate(0, 0, a.DurationDays)
	a.UpdatedAt = s.now()

	ok, err := s.DB.UpdateAuctionPreOpen(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}
	if !ok {
		// The sweep opened the auction while we were editing. Undo the
		// ledger side effects before rejecting: the open auction still
		// references the old product at the original begin price.
		if swapped {
			if relErr := s.Ledger.Release(ctx, a.ProductID, newSnap); relErr != nil {
				s.logger.Error("AUCTION", fmt.Sprintf("Failed to release swapped product %s: %v", a.ProductID, relErr))
			}
			if _, resErr := s.Ledger.Reserve(ctx, oldProductID, a.ArtistID, originalPrice); resErr != nil {
				s.logger.Error("AUCTION", fmt.Sprintf("Failed to re-capture product %s: %v", oldProductID, resErr))
			}
		} else if repriced {
			if repErr := s.Ledger.Reprice(ctx, oldProductID, originalPrice); repErr != nil {
				s.logger.Error("AUCTION", fmt.Sprintf("Failed to restore price of product %s: %v", oldProductID, repErr))
			}
		}
		return nil, fmt.Errorf("%w: auction has already started", ErrConflict)
	}

	s.logger.LogAuction("UPDATE", a.ID, "auction updated")
	return a, nil
}

// ---------------- DELETE ----------------

// DeleteAuction removes a not-started auction nobody has committed to.
// The participant check and the delete are one atomic statement in the
// store, so a join landing concurrently cannot be orphaned.
func (s *Service) DeleteAuction(ctx context.Context, auctionID, artistID string) error {
	a, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("%w: auction", ErrNotFound)
	}
	if artistID != "" && a.ArtistID != artistID {
		return fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status != models.AuctionNotStarted {
		return fmt.Errorf("%w: auction has already started", ErrForbidden)
	}

	deleted, err := s.DB.DeleteAuctionIfUnjoined(ctx, auctionID)
	if err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("%w: auction", ErrNotFound)
		}
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if !deleted {
		// Work out which precondition lost the race.
		current, err := s.DB.GetAuctionByID(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("%w: auction", ErrNotFound)
		}
		if current.Status != models.AuctionNotStarted {
			return fmt.Errorf("%w: auction has already started", ErrForbidden)
		}
		return fmt.Errorf("%w: users have already joined this auction", ErrForbidden)
	}

	s.logger.LogAuction("DELETE", auctionID, "auction deleted, product released")
	return nil
}

// ---------------- JOIN ----------------

// RequestToJoin creates the Pending join record for (user, auction),
// snapshotting the chosen shipping address at this instant. One join
// attempt per user per auction for the lifetime of the auction.
func (s *Service) RequestToJoin(ctx context.Context, auctionID, userID, addressID string) (*models.AuctionOrder, error) {
	a, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("%w: auction is finished", ErrForbidden)
	}

	if _, err := s.DB.GetAuctionOrder(ctx, auctionID, userID); err == nil {
		return nil, fmt.Errorf("%w: you have already requested to join this auction", ErrConflict)
	}

	addr, err := s.DB.GetAddress(ctx, userID, addressID)
	if err != nil {
		return nil, fmt.Errorf("%w: address not found in your profile", ErrNotFound)
	}

	ao := &models.AuctionOrder{
		ID:              uuid.New().String(),
		AuctionID:       auctionID,
		UserID:          userID,
		PaymentStatus:   models.PaymentPending,
		ShippingAddress: addr.ShippingSnapshot(),
		CreatedAt:       s.now(),
	}
	if err := s.DB.CreateAuctionOrder(ctx, ao); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: you have already requested to join this auction", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	s.logger.LogAuction("JOIN", auctionID, fmt.Sprintf("user %s requested to join", userID))
	return ao, nil
}

// ---------------- PAY ----------------

// Pay creates (or regenerates) the Stripe checkout session for the join
// fee and persists the pay url and payment reference on the join record.
// Idempotent until the webhook confirms: repeated calls regenerate the
// url; calls after Paid fail with Conflict.
func (s *Service) Pay(ctx context.Context, auctionID, userID string) (string, error) {
	a, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return "", fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status.Terminal() {
		return "", fmt.Errorf("%w: auction is finished", ErrConflict)
	}

	ao, err := s.DB.GetAuctionOrder(ctx, auctionID, userID)
	if err != nil {
		return "", fmt.Errorf("%w: no join request for this auction", ErrNotFound)
	}
	if ao.PaymentStatus == models.PaymentPaid {
		return "", fmt.Errorf("%w: you have already paid for this auction", ErrConflict)
	}

	user, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: user", ErrNotFound)
	}

	metadata := map[string]string{
		"auction_order_id": ao.ID,
		"auction_id":       auctionID,
		"user_id":          userID,
	}
	payURL, paymentRef, err := s.Gateway.CreateJoinCheckoutSession(ctx, user.Email, metadata)
	if err != nil {
		// Timeout or gateway failure leaves the record Pending; the
		// user may simply retry.
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	ok, err := s.DB.SetPaymentSession(ctx, ao.ID, payURL, paymentRef)
	if err != nil {
		return "", fmt.Errorf("failed to persist payment session: %w", err)
	}
	if !ok {
		// Webhook confirmed the payment while the session was being
		// created.
		return "", fmt.Errorf("%w: you have already paid for this auction", ErrConflict)
	}

	s.logger.LogAuction("PAY", auctionID, fmt.Sprintf("checkout session %s created for user %s", paymentRef, userID))
	return payURL, nil
}

// ConfirmJoinPayment applies a verified completed-checkout event: the
// join record becomes Paid and the user enters the participant set. This
// is the only path by which a user becomes bid-eligible. Idempotent:
// replays match zero rows on the Paid transition and ON CONFLICT DO
// NOTHING on the participant insert.
func (s *Service) ConfirmJoinPayment(ctx context.Context, auctionOrderID, paymentIntent string) error {
	ao, err := s.DB.GetAuctionOrderByID(ctx, auctionOrderID)
	if err != nil {
		return fmt.Errorf("%w: auction order %s", ErrNotFound, auctionOrderID)
	}

	a, err := s.DB.GetAuctionByID(ctx, ao.AuctionID)
	if err != nil {
		return fmt.Errorf("%w: auction %s", ErrNotFound, ao.AuctionID)
	}
	if a.Status.Terminal() {
		// The payment cleared after the auction closed, so the
		// eligibility it bought no longer exists. Refund the fee and
		// acknowledge the delivery; the record stays Pending.
		if ao.PaymentStatus != models.PaymentPaid && paymentIntent != "" {
			if err := s.Gateway.Refund(ctx, paymentIntent); err != nil {
				s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to refund late join fee %s: %v", paymentIntent, err))
			} else {
				s.logger.LogAuction("REFUND", ao.AuctionID, fmt.Sprintf("late join fee refunded for user %s", ao.UserID))
			}
		}
		return nil
	}

	transitioned, err := s.DB.MarkAuctionOrderPaid(ctx, ao.ID, paymentIntent)
	if err != nil {
		return fmt.Errorf("failed to mark auction order paid: %w", err)
	}
	if !transitioned {
		s.logger.Warn("WEBHOOK", fmt.Sprintf("Replayed payment confirmation for auction order %s", ao.ID))
	}

	if err := s.DB.AddParticipant(ctx, ao.AuctionID, ao.UserID); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	s.logger.LogAuction("PAID", ao.AuctionID, fmt.Sprintf("user %s is now an eligible bidder", ao.UserID))
	return nil
}

// ---------------- BID ----------------

// PlaceBid runs the price ratchet for an eligible bidder. The strict
// eligibility rule applies: the caller's join record must be Paid. The
// ratchet itself is a conditional update in the store; ties and late
// bids against a closed auction match zero rows and are rejected.
func (s *Service) PlaceBid(ctx context.Context, auctionID, userID string, amount float64) (*models.Auction, error) {
	a, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("%w: auction", ErrNotFound)
	}
	if a.Status != models.AuctionOpen {
		return nil, fmt.Errorf("%w: auction is not open for bidding", ErrConflict)
	}

	ao, err := s.DB.GetAuctionOrder(ctx, auctionID, userID)
	if err != nil || ao.PaymentStatus != models.PaymentPaid {
		return nil, fmt.Errorf("%w: you must pay the join fee before bidding", ErrForbidden)
	}

	accepted, err := s.DB.PlaceBid(ctx, auctionID, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to place bid: %w", err)
	}
	if !accepted {
		return nil, fmt.Errorf("%w: bid must exceed the current price", ErrConflict)
	}

	updated, err := s.DB.GetAuctionByID(ctx, auctionID)
	if err != nil {
		// The bid landed; reading it back is best-effort.
		s.logger.Warn("BID", fmt.Sprintf("Bid accepted but re-read failed for auction %s: %v", auctionID, err))
		updated = a
		updated.VariablePrice = amount
		updated.HighestBidderID = userID
	}

	s.logger.LogAuction("BID", auctionID, fmt.Sprintf("user %s raised price to %.2f", userID, amount))

	// Fire-and-forget broadcast: failures are the notifier's problem.
	s.Notify.PublishPriceUpdate(models.PriceUpdateEvent{
		AuctionID:       updated.ID,
		ProductID:       updated.ProductID,
		VariablePrice:   updated.VariablePrice,
		HighestBidderID: updated.HighestBidderID,
		At:              s.now(),
	})

	return updated, nil
}
