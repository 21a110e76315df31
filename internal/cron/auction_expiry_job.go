package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

const (
	auctionExpiryJobName   = "auction-expiry"
	defaultExpiryBatchSize = 200
)

type expiryAuctions interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status string) (*auctions.StatusResult, error)
}

type AuctionExpiryJobParams struct {
	Logger    *logger.Logger
	Auctions  expiryAuctions
	BatchSize int
}

// NewAuctionExpiryJob closes active auctions whose end time has passed.
func NewAuctionExpiryJob(params AuctionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auctions service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &auctionExpiryJob{
		logg:     params.Logger,
		auctions: params.Auctions,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type auctionExpiryJob struct {
	logg     *logger.Logger
	auctions expiryAuctions
	batch    int
	now      func() time.Time
}

func (j *auctionExpiryJob) Name() string { return auctionExpiryJobName }

func (j *auctionExpiryJob) Run(ctx context.Context) error {
	ctx = audit.WithActor(ctx, audit.System(auctionExpiryJobName))
	expired, err := j.auctions.ListExpired(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query expired auctions: %w", err)
	}

	var errs []error
	completed, incomplete, skipped := 0, 0, 0
	for _, auction := range expired {
		// completing needs both winner pointers; a half-set pair would conflict on every run
		target := enums.AuctionStatusIncomplete
		if auction.WinnerID != nil && auction.WinningBidID != nil {
			target = enums.AuctionStatusCompleted
		}
		_, err := j.auctions.ChangeStatus(ctx, auction.ID, string(target))
		switch {
		case err == nil && target == enums.AuctionStatusCompleted:
			completed++
		case err == nil:
			incomplete++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// Closed or removed by an admin since the query.
			skipped++
		default:
			errs = append(errs, fmt.Errorf("expire auction %s: %w", auction.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"found":      len(expired),
		"completed":  completed,
		"incomplete": incomplete,
		"skipped":    skipped,
		"failed":     len(errs),
	})
	j.logg.Info(logCtx, "auction expiry complete")
	return multierr.Combine(errs...)
}
