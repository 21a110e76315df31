package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
)

// Notifier composes the in-app messages emitted by auction lifecycle events.
// Callers pass a transaction-bound repository so messages commit with the
// change that produced them.
type Notifier interface {
	AuctionCompleted(ctx context.Context, repo Repository, auction *models.Auction, agreedPrice decimal.Decimal) error
	AuctionCancelled(ctx context.Context, repo Repository, auction *models.Auction) error
	BidUpdated(ctx context.Context, repo Repository, auction *models.Auction, bidderID uuid.UUID, amount decimal.Decimal) error
}

type notifier struct {
	now func() time.Time
}

// NewNotifier builds a Notifier; now defaults to time.Now.
func NewNotifier(now func() time.Time) Notifier {
	if now == nil {
		now = time.Now
	}
	return &notifier{now: now}
}

func (n *notifier) create(ctx context.Context, repo Repository, userID uuid.UUID, auctionID uuid.UUID, kind enums.NotificationType, title, message string) error {
	if repo == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	row := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		AuctionID: &auctionID,
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: n.now().UTC(),
	}
	return repo.Create(ctx, row)
}

func (n *notifier) AuctionCompleted(ctx context.Context, repo Repository, auction *models.Auction, agreedPrice decimal.Decimal) error {
	if auction.WinnerID != nil {
		if err := n.create(ctx, repo, *auction.WinnerID, auction.ID, enums.NotificationTypeAuctionWon,
			"You won an auction",
			fmt.Sprintf("Your bid of %s won %q. A trip has been created.", agreedPrice.StringFixed(2), auction.Title)); err != nil {
			return err
		}
	}
	return n.create(ctx, repo, auction.CreatedBy, auction.ID, enums.NotificationTypeAuctionCompleted,
		"Auction completed",
		fmt.Sprintf("%q closed at %s.", auction.Title, agreedPrice.StringFixed(2)))
}

func (n *notifier) AuctionCancelled(ctx context.Context, repo Repository, auction *models.Auction) error {
	return n.create(ctx, repo, auction.CreatedBy, auction.ID, enums.NotificationTypeAuctionCancelled,
		"Auction cancelled",
		fmt.Sprintf("%q was cancelled by an administrator.", auction.Title))
}

func (n *notifier) BidUpdated(ctx context.Context, repo Repository, auction *models.Auction, bidderID uuid.UUID, amount decimal.Decimal) error {
	return n.create(ctx, repo, bidderID, auction.ID, enums.NotificationTypeBidUpdated,
		"Your bid was updated",
		fmt.Sprintf("An administrator set your bid on %q to %s.", auction.Title, amount.StringFixed(2)))
}
