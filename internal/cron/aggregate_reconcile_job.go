package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/haulbid-backend/internal/audit"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

const aggregateReconcileJobName = "aggregate-reconcile"

type activeAuctionLister interface {
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

type aggregateReconciler interface {
	Reconcile(ctx context.Context, auctionID uuid.UUID) (bool, error)
}

type AggregateReconcileJobParams struct {
	Logger   *logger.Logger
	Auctions activeAuctionLister
	Engine   aggregateReconciler
}

// NewAggregateReconcileJob re-derives the bid aggregates of every active
// auction and repairs any that drifted.
func NewAggregateReconcileJob(params AggregateReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auctions service required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("bid engine required")
	}
	return &aggregateReconcileJob{
		logg:     params.Logger,
		auctions: params.Auctions,
		engine:   params.Engine,
	}, nil
}

type aggregateReconcileJob struct {
	logg     *logger.Logger
	auctions activeAuctionLister
	engine   aggregateReconciler
}

func (j *aggregateReconcileJob) Name() string { return aggregateReconcileJobName }

func (j *aggregateReconcileJob) Run(ctx context.Context) error {
	ctx = audit.WithActor(ctx, audit.System(aggregateReconcileJobName))
	ids, err := j.auctions.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active auctions: %w", err)
	}

	var errs []error
	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		changed, err := j.engine.Reconcile(ctx, id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("reconcile auction %s: %w", id, err))
			continue
		}
		if changed {
			repaired++
			j.logg.Warn(j.logg.WithAuctionID(ctx, id.String()), "aggregate drift repaired")
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  len(ids),
		"repaired": repaired,
		"failed":   len(errs),
	})
	j.logg.Info(logCtx, "aggregate reconcile complete")
	return multierr.Combine(errs...)
}
