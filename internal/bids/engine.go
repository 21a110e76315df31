package bids

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/internal/notifications"
	"github.com/angelmondragon/haulbid-backend/internal/profiles"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/db"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

// maxAmount mirrors the numeric(12,2) bid column.
var maxAmount = decimal.New(1, 10)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine keeps an auction's cached winner and aggregates in step with its
// bids. Every mutation locks the auction row, applies the bid change, then
// re-derives the aggregate from the full bid set inside one transaction.
type Engine interface {
	RecordOrUpdate(ctx context.Context, input RecordInput) (*Result, error)
	UpdateAmount(ctx context.Context, input UpdateAmountInput) (*Result, error)
	Delete(ctx context.Context, input DeleteInput) (*Result, error)
	Reconcile(ctx context.Context, auctionID uuid.UUID) (bool, error)
}

// RecordInput places a driver's bid, or edits it if the driver already bid.
type RecordInput struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    string
}

// UpdateAmountInput is an administrative edit of an existing bid.
type UpdateAmountInput struct {
	BidID     uuid.UUID
	AuctionID uuid.UUID
	Amount    string
}

type DeleteInput struct {
	BidID     uuid.UUID
	AuctionID uuid.UUID
}

// Result carries the auction as committed and the touched bid.
type Result struct {
	Auction   models.Auction `json:"auction"`
	Bid       *models.Bid    `json:"bid,omitempty"`
	Created   bool           `json:"created"`
	Reelected bool           `json:"reelected"`
}

// EngineParams bundles the engine's collaborators.
type EngineParams struct {
	Tx            txRunner
	Auctions      auctions.Repository
	Bids          Repository
	Profiles      profiles.Repository
	Audit         audit.Repository
	Notifications notifications.Repository
	Notifier      notifications.Notifier
	Feed          changefeed.Publisher
	Logger        *logger.Logger
	Metrics       *metrics.EngineMetrics
	Now           func() time.Time
}

type engine struct {
	tx            txRunner
	auctions      auctions.Repository
	bids          Repository
	profiles      profiles.Repository
	audit         audit.Repository
	notifications notifications.Repository
	notifier      notifications.Notifier
	feed          changefeed.Publisher
	logg          *logger.Logger
	metrics       *metrics.EngineMetrics
	now           func() time.Time
}

// NewEngine validates params and builds the engine.
func NewEngine(params EngineParams) (Engine, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if params.Bids == nil {
		return nil, fmt.Errorf("bids repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.NewNotifier(now)
	}
	return &engine{
		tx:            params.Tx,
		auctions:      params.Auctions,
		bids:          params.Bids,
		profiles:      params.Profiles,
		audit:         params.Audit,
		notifications: params.Notifications,
		notifier:      notifier,
		feed:          params.Feed,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           now,
	}, nil
}

// ParseAmount accepts a positive decimal with at most two fractional digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric")
	}
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount is too large")
	}
	return amount.Round(2), nil
}

func (e *engine) RecordOrUpdate(ctx context.Context, input RecordInput) (*Result, error) {
	if input.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if input.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	amount, err := ParseAmount(input.Amount)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		bidder, err := e.profiles.WithTx(tx).FindByID(ctx, input.BidderID)
		if err != nil {
			return notFoundOr(err, "driver not found", "load driver")
		}
		if bidder.Role != enums.ProfileRoleDriver {
			return pkgerrors.New(pkgerrors.CodeValidation, "bids can only be placed by drivers")
		}

		auction, err := e.lockActive(ctx, tx, input.AuctionID)
		if err != nil {
			return err
		}

		bidsRepo := e.bids.WithTx(tx)
		existing, err := bidsRepo.FindByAuctionAndUser(ctx, auction.ID, bidder.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing bid")
		}

		var (
			bid      *models.Bid
			previous *decimal.Decimal
		)
		if existing == nil {
			now := e.now().UTC()
			bid = &models.Bid{
				ID:        uuid.New(),
				AuctionID: auction.ID,
				UserID:    bidder.ID,
				Amount:    amount,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := bidsRepo.Create(ctx, bid); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "driver already has a bid on this auction")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid")
			}
		} else {
			prev := existing.Amount
			previous = &prev
			if err := bidsRepo.UpdateAmount(ctx, existing.ID, amount); err != nil {
				return notFoundOr(err, "bid not found", "update bid")
			}
			existing.Amount = amount
			bid = existing
		}

		result, err = e.settle(ctx, tx, auction, ElectLowest)
		if err != nil {
			return err
		}
		result.Created = existing == nil
		result.Bid = bid
		bid.IsWinningBid = result.Auction.WinningBidID != nil && *result.Auction.WinningBidID == bid.ID

		bidderID := bidder.ID
		_, err = e.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			UserID:    &bidderID,
			Summary:   bidSummary(existing == nil, amount),
			Details: &audit.BidRecorded{
				BidID:                bid.ID,
				Created:              existing == nil,
				PreviousAmount:       previous,
				NewAmount:            amount,
				Reelected:            result.Reelected,
				PreviousWinningBidID: auction.WinningBidID,
				WinningBidID:         result.Auction.WinningBidID,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record bid audit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	op := changefeed.OpUpdate
	label := "update"
	if result.Created {
		op, label = changefeed.OpInsert, "create"
	}
	e.committed(ctx, label, result, op)
	return result, nil
}

func (e *engine) UpdateAmount(ctx context.Context, input UpdateAmountInput) (*Result, error) {
	if input.BidID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid id required")
	}
	if input.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	amount, err := ParseAmount(input.Amount)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		auction, err := e.lockActive(ctx, tx, input.AuctionID)
		if err != nil {
			return err
		}

		bidsRepo := e.bids.WithTx(tx)
		bid, err := bidsRepo.FindByID(ctx, input.BidID)
		if err != nil {
			return notFoundOr(err, "bid not found", "load bid")
		}
		if bid.AuctionID != auction.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bid not found on auction")
		}
		previous := bid.Amount
		if err := bidsRepo.UpdateAmount(ctx, bid.ID, amount); err != nil {
			return notFoundOr(err, "bid not found", "update bid")
		}
		bid.Amount = amount

		result, err = e.settle(ctx, tx, auction, ElectLowest)
		if err != nil {
			return err
		}
		result.Bid = bid
		bid.IsWinningBid = result.Auction.WinningBidID != nil && *result.Auction.WinningBidID == bid.ID

		bidderID := bid.UserID
		_, err = e.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			UserID:    &bidderID,
			Summary:   fmt.Sprintf("bid amount changed from %s to %s", previous.StringFixed(2), amount.StringFixed(2)),
			Details: &audit.BidRecorded{
				BidID:                bid.ID,
				PreviousAmount:       &previous,
				NewAmount:            amount,
				Reelected:            result.Reelected,
				PreviousWinningBidID: auction.WinningBidID,
				WinningBidID:         result.Auction.WinningBidID,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record bid audit")
		}
		if err := e.notifier.BidUpdated(ctx, e.notifications.WithTx(tx), &result.Auction, bid.UserID, amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notify bidder")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, "update", result, changefeed.OpUpdate)
	return result, nil
}

// Delete removes a bid. Removing the winning bid leaves the auction without a
// winner; the next-lowest bid is not promoted.
func (e *engine) Delete(ctx context.Context, input DeleteInput) (*Result, error) {
	if input.BidID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid id required")
	}
	if input.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}

	var result *Result
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		auction, err := e.auctions.WithTx(tx).FindByIDForUpdate(ctx, input.AuctionID)
		if err != nil {
			return notFoundOr(err, "auction not found", "load auction")
		}

		bidsRepo := e.bids.WithTx(tx)
		bid, err := bidsRepo.FindByID(ctx, input.BidID)
		if err != nil {
			return notFoundOr(err, "bid not found", "load bid")
		}
		if bid.AuctionID != auction.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bid not found on auction")
		}
		wasWinning := auction.WinningBidID != nil && *auction.WinningBidID == bid.ID

		// The auction's pointer must be cleared before the row it references
		// can go.
		if wasWinning {
			if _, err := e.auctions.WithTx(tx).ClearWinningBidRefs(ctx, []uuid.UUID{bid.ID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear winning bid")
			}
		}
		deleted, err := bidsRepo.Delete(ctx, bid.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete bid")
		}
		if deleted == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}

		result, err = e.settle(ctx, tx, auction, RetainOrVacate)
		if err != nil {
			return err
		}
		// Vacating is not a re-election.
		result.Reelected = result.Reelected && !wasWinning
		bid.IsWinningBid = wasWinning
		result.Bid = bid

		bidderID := bid.UserID
		_, err = e.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			UserID:    &bidderID,
			Summary:   fmt.Sprintf("bid of %s deleted", bid.Amount.StringFixed(2)),
			Details: &audit.BidDeleted{
				BidID:      bid.ID,
				BidderID:   bid.UserID,
				Amount:     bid.Amount,
				WasWinning: wasWinning,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record bid audit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, "delete", result, changefeed.OpDelete)
	return result, nil
}

// Reconcile re-derives one auction's aggregate and writes it only if the
// stored row drifted. It reports whether a repair happened.
func (e *engine) Reconcile(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	var (
		drifted bool
		result  *Result
	)
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		auction, err := e.auctions.WithTx(tx).FindByIDForUpdate(ctx, auctionID)
		if err != nil {
			return notFoundOr(err, "auction not found", "load auction")
		}
		current, err := e.bids.WithTx(tx).ListByAuction(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
		}
		agg := Recompute(current, auction.WinningBidID, RetainOrVacate)
		if !Drifted(auction, agg) {
			return nil
		}
		drifted = true

		previousCount, previousWinner := auction.BidCount, auction.WinningBidID
		result, err = e.apply(ctx, tx, auction, agg)
		if err != nil {
			return err
		}
		_, err = e.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			Summary:   "cached bid aggregates repaired",
			Details: &audit.AggregatesReconciled{
				PreviousBidCount:     previousCount,
				BidCount:             agg.BidCount,
				PreviousWinningBidID: previousWinner,
				WinningBidID:         agg.WinningBidID,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconcile audit")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if drifted {
		e.committed(ctx, "reconcile", result, changefeed.OpUpdate)
	}
	return drifted, nil
}

func (e *engine) lockActive(ctx context.Context, tx *gorm.DB, auctionID uuid.UUID) (*models.Auction, error) {
	auction, err := e.auctions.WithTx(tx).FindByIDForUpdate(ctx, auctionID)
	if err != nil {
		return nil, notFoundOr(err, "auction not found", "load auction")
	}
	if auction.Status != enums.AuctionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("auction is %s; bids can only change while active", auction.Status)).
			WithDetails(map[string]any{"status": auction.Status})
	}
	return auction, nil
}

// settle re-reads the bid set and writes the derived aggregate.
func (e *engine) settle(ctx context.Context, tx *gorm.DB, auction *models.Auction, election Election) (*Result, error) {
	current, err := e.bids.WithTx(tx).ListByAuction(ctx, auction.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	return e.apply(ctx, tx, auction, Recompute(current, auction.WinningBidID, election))
}

func (e *engine) apply(ctx context.Context, tx *gorm.DB, auction *models.Auction, agg auctions.Aggregate) (*Result, error) {
	if err := e.auctions.WithTx(tx).SaveAggregate(ctx, auction.ID, agg); err != nil {
		return nil, notFoundOr(err, "auction not found", "save auction aggregate")
	}
	if err := e.bids.WithTx(tx).SyncWinningFlags(ctx, auction.ID, agg.WinningBidID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync winning flags")
	}

	next := *auction
	next.BidCount = agg.BidCount
	next.LowestBidAmount = agg.LowestBidAmount
	next.HighestBidAmount = agg.HighestBidAmount
	next.WinningBidID = agg.WinningBidID
	next.WinnerID = agg.WinnerID
	return &Result{
		Auction:   next,
		Reelected: Reelected(auction.WinningBidID, agg.WinningBidID),
	}, nil
}

func (e *engine) committed(ctx context.Context, op string, result *Result, feedOp changefeed.Op) {
	if result == nil {
		return
	}
	e.metrics.IncMutation(op)
	if result.Reelected {
		e.metrics.IncReelection()
	}

	auctionID, consignerID := result.Auction.ID, result.Auction.CreatedBy
	change := changefeed.Change{
		Table:       "bids",
		Op:          feedOp,
		AuctionID:   &auctionID,
		ConsignerID: &consignerID,
		At:          e.now().UTC(),
	}
	if result.Bid != nil {
		driverID := result.Bid.UserID
		change.DriverID = &driverID
	}
	changefeed.Announce(ctx, e.feed, e.logg, change)
}

func bidSummary(created bool, amount decimal.Decimal) string {
	if created {
		return "bid placed at " + amount.StringFixed(2)
	}
	return "bid re-placed at " + amount.StringFixed(2)
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
