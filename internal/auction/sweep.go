package auction

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ms-auctions/internal/models"
)

// The two sweep jobs re-evaluate every auction against wall-clock time.
// Both are idempotent and re-entrant: transitions are conditional
// updates in the store, so overlapping runs (or a shorter scheduler
// interval) apply each transition at most once. A failure on one auction
// is logged and the sweep moves on to the next.

// SweepAuctionsToOpen opens every not-started auction whose begin date
// has passed. No product side effects.
func (s *Service) SweepAuctionsToOpen(ctx context.Context) error {
	now := s.now()
	due, err := s.DB.ListDueToOpen(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list auctions due to open: %w", err)
	}
	if len(due) == 0 {
		s.logger.LogSweep("OPEN", "no auctions due to open")
		return nil
	}

	for _, a := range due {
		if !a.Status.CanTransitionTo(models.AuctionOpen) {
			continue
		}
		opened, err := s.DB.OpenAuction(ctx, a.ID, now)
		if err != nil {
			s.logger.Error("SWEEP", fmt.Sprintf("Failed to open auction %s: %v", a.ID, err))
			continue
		}
		if !opened {
			// Another sweep instance got there first.
			continue
		}
		s.logger.LogSweep("OPEN", fmt.Sprintf("auction %s is now open", a.ID))
		s.Notify.PublishAuctionStatus(models.AuctionStatusEvent{
			AuctionID: a.ID,
			ProductID: a.ProductID,
			Status:    models.AuctionOpen,
			At:        now,
		})
	}
	return nil
}

// SweepAuctionsToClose closes every open auction whose end date has
// passed and settles its product: sold at the final variable price when
// a highest bidder exists, otherwise released back to the pre-auction
// pricing snapshot. Settlement is transactional per auction; the
// per-auction redis lock keeps concurrent sweep instances off the same
// row.
func (s *Service) SweepAuctionsToClose(ctx context.Context) error {
	now := s.now()
	due, err := s.DB.ListDueToClose(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list auctions due to close: %w", err)
	}
	if len(due) == 0 {
		s.logger.LogSweep("CLOSE", "no auctions due to close")
		return nil
	}

	owner := uuid.New().String()
	for _, a := range due {
		if !a.Status.CanTransitionTo(models.AuctionClosed) {
			continue
		}
		if s.Locker != nil {
			locked, err := s.Locker.LockAuction(ctx, a.ID, owner)
			if err != nil {
				s.logger.Error("SWEEP", fmt.Sprintf("Lock error for auction %s: %v", a.ID, err))
				continue
			}
			if !locked {
				continue
			}
		}

		settled, applied, err := s.DB.CloseAndSettle(ctx, a.ID, now)

		if s.Locker != nil {
			if unlockErr := s.Locker.UnlockAuction(ctx, a.ID, owner); unlockErr != nil {
				s.logger.Warn("SWEEP", fmt.Sprintf("Failed to unlock auction %s: %v", a.ID, unlockErr))
			}
		}

		if err != nil {
			s.logger.Error("SWEEP", fmt.Sprintf("Failed to close auction %s: %v", a.ID, err))
			continue
		}
		if !applied {
			continue
		}

		if settled.WinnerID != "" {
			s.logger.LogSweep("CLOSE", fmt.Sprintf("auction %s closed, winner %s at %.2f", settled.ID, settled.WinnerID, settled.VariablePrice))
		} else {
			s.logger.LogSweep("CLOSE", fmt.Sprintf("auction %s closed with no bids, product %s released", settled.ID, settled.ProductID))
		}

		s.Notify.PublishAuctionStatus(models.AuctionStatusEvent{
			AuctionID:  settled.ID,
			ProductID:  settled.ProductID,
			Status:     models.AuctionClosed,
			WinnerID:   settled.WinnerID,
			FinalPrice: settled.VariablePrice,
			At:         now,
		})
	}
	return nil
}
