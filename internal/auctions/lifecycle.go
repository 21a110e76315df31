package auctions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/db"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
)

// StatusResult reports a committed status transition.
type StatusResult struct {
	Auction        models.Auction      `json:"auction"`
	PreviousStatus enums.AuctionStatus `json:"previous_status"`
	WinnerCleared  bool                `json:"winner_cleared"`
	Trip           *models.Trip        `json:"trip,omitempty"`
}

// CanTransition reports whether from may move to to. Only active auctions
// move, and terminal states are final.
func CanTransition(from, to enums.AuctionStatus) bool {
	return from == enums.AuctionStatusActive && to.IsTerminal()
}

// ChangeStatus moves an auction to a terminal status. Cancelling clears the
// winner. Completing requires a winner and opens a trip for it.
func (s *service) ChangeStatus(ctx context.Context, id uuid.UUID, raw string) (*StatusResult, error) {
	target, err := enums.ParseAuctionStatus(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("unrecognized auction status %q", raw)).
			WithDetails(map[string]any{"allowed": []enums.AuctionStatus{
				enums.AuctionStatusCompleted,
				enums.AuctionStatusCancelled,
				enums.AuctionStatusIncomplete,
			}})
	}

	var result *StatusResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "auction not found", "load auction")
		}
		from := auction.Status
		if !CanTransition(from, target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("auction cannot move from %s to %s", from, target)).
				WithDetails(map[string]any{"from": from, "to": target})
		}

		var winningBid *models.Bid
		if target == enums.AuctionStatusCompleted {
			if auction.WinningBidID == nil || auction.WinnerID == nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "auction has no winner; mark it incomplete instead")
			}
			winningBid, err = repo.FindBid(ctx, *auction.WinningBidID)
			if err != nil {
				return notFoundOr(err, "winning bid not found", "load winning bid")
			}
		}

		clearWinner := target == enums.AuctionStatusCancelled
		moved, err := repo.TransitionStatus(ctx, auction.ID, from, target, clearWinner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update auction status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction status changed concurrently")
		}

		result = &StatusResult{PreviousStatus: from}
		next := *auction
		next.Status = target

		notes := s.notifications.WithTx(tx)
		switch target {
		case enums.AuctionStatusCancelled:
			result.WinnerCleared = auction.WinnerID != nil || auction.WinningBidID != nil
			next.WinnerID, next.WinningBidID = nil, nil
			if err := repo.ClearBidWinningFlags(ctx, auction.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear winning flags")
			}
			if err := s.notifier.AuctionCancelled(ctx, notes, &next); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notify consigner")
			}
		case enums.AuctionStatusCompleted:
			trip := &models.Trip{
				ID:          uuid.New(),
				AuctionID:   auction.ID,
				DriverID:    *auction.WinnerID,
				ConsignerID: auction.CreatedBy,
				Status:      enums.TripStatusInProgress,
				AgreedPrice: winningBid.Amount,
			}
			if err := s.trips.WithTx(tx).Create(ctx, trip); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "auction already has a trip")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trip")
			}
			result.Trip = trip
			if err := s.notifier.AuctionCompleted(ctx, notes, &next, winningBid.Amount); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notify participants")
			}
		}

		details := &audit.StatusChanged{From: from, To: target, WinnerCleared: result.WinnerCleared}
		if result.Trip != nil {
			details.TripID = &result.Trip.ID
		}
		_, err = s.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			Summary:   fmt.Sprintf("status changed from %s to %s", from, target),
			Details:   details,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status audit")
		}

		result.Auction = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, &result.Auction, changefeed.OpUpdate)
	return result, nil
}
