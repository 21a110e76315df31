// Package cascade deletes auctions and profiles together with every row that
// references them, children before parents.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/internal/bids"
	"github.com/angelmondragon/haulbid-backend/internal/notifications"
	"github.com/angelmondragon/haulbid-backend/internal/profiles"
	"github.com/angelmondragon/haulbid-backend/internal/trips"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/identity"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

// Step names reported in results and in the details of a failed deletion.
const (
	StepListAuctions               = "list_auctions"
	StepClearWinningBid            = "clear_winning_bid"
	StepDeleteTrips                = "delete_trips"
	StepDeleteAuctionNotifications = "delete_auction_notifications"
	StepDeleteAuctionAuditLogs     = "delete_auction_audit_logs"
	StepDeleteBids                 = "delete_bids"
	StepDeleteAuctions             = "delete_auctions"
	StepDeleteUserNotifications    = "delete_user_notifications"
	StepDeleteUserAuditLogs        = "delete_user_audit_logs"
	StepClearWinner                = "clear_winner"
	StepClearWinningBidRefs        = "clear_winning_bid_refs"
	StepRecomputeAggregates        = "recompute_aggregates"
	StepDeleteProfile              = "delete_profile"
	StepRecordAudit                = "record_audit"
	StepDeleteIdentity             = "delete_identity"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Coordinator removes an auction, a consigner or a driver.
type Coordinator interface {
	DeleteAuction(ctx context.Context, auctionID uuid.UUID) (*Report, error)
	DeleteConsigner(ctx context.Context, profileID uuid.UUID) (*Report, error)
	DeleteDriver(ctx context.Context, profileID uuid.UUID) (*Report, error)
}

// Report lists the steps that ran and the rows each removed or touched.
type Report struct {
	Target          string            `json:"target"`
	ID              uuid.UUID         `json:"id"`
	Atomic          bool              `json:"atomic"`
	Steps           []audit.StepCount `json:"steps"`
	IdentityDeleted bool              `json:"identity_deleted"`
}

type Params struct {
	Tx            txRunner
	Auctions      auctions.Repository
	Bids          bids.Repository
	Trips         trips.Repository
	Profiles      profiles.Repository
	Notifications notifications.Repository
	Audit         audit.Repository
	Identity      identity.Deleter
	Feed          changefeed.Publisher
	Logger        *logger.Logger
	Metrics       *metrics.EngineMetrics

	// Atomic runs every database step in one transaction. When false each
	// step commits on its own and a failure leaves earlier steps applied.
	Atomic bool
	Now    func() time.Time
}

type coordinator struct {
	tx            txRunner
	auctions      auctions.Repository
	bids          bids.Repository
	trips         trips.Repository
	profiles      profiles.Repository
	notifications notifications.Repository
	audit         audit.Repository
	identity      identity.Deleter
	feed          changefeed.Publisher
	logg          *logger.Logger
	metrics       *metrics.EngineMetrics
	atomic        bool
	now           func() time.Time
}

func NewCoordinator(params Params) (Coordinator, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Auctions == nil || params.Bids == nil || params.Trips == nil || params.Profiles == nil {
		return nil, fmt.Errorf("auction, bid, trip and profile repositories required")
	}
	if params.Notifications == nil || params.Audit == nil {
		return nil, fmt.Errorf("notifications and audit repositories required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &coordinator{
		tx:            params.Tx,
		auctions:      params.Auctions,
		bids:          params.Bids,
		trips:         params.Trips,
		profiles:      params.Profiles,
		notifications: params.Notifications,
		audit:         params.Audit,
		identity:      params.Identity,
		feed:          params.Feed,
		logg:          params.Logger,
		metrics:       params.Metrics,
		atomic:        params.Atomic,
		now:           now,
	}, nil
}

// stores is the repository set one run of steps writes through.
type stores struct {
	auctions      auctions.Repository
	bids          bids.Repository
	trips         trips.Repository
	profiles      profiles.Repository
	notifications notifications.Repository
	audit         audit.Repository
}

func (c *coordinator) bind(tx *gorm.DB) stores {
	return stores{
		auctions:      c.auctions.WithTx(tx),
		bids:          c.bids.WithTx(tx),
		trips:         c.trips.WithTx(tx),
		profiles:      c.profiles.WithTx(tx),
		notifications: c.notifications.WithTx(tx),
		audit:         c.audit.WithTx(tx),
	}
}

type step struct {
	name string
	run  func(ctx context.Context, s stores, done []audit.StepCount) (int64, error)
}

// execute runs steps in order and stops at the first failure.
func (c *coordinator) execute(ctx context.Context, report *Report, steps []step) error {
	if c.atomic {
		var counts []audit.StepCount
		err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			counts, err = c.runSteps(ctx, c.bind(tx), steps)
			return err
		})
		if err != nil {
			return err
		}
		report.Steps = append(report.Steps, counts...)
		return nil
	}

	counts, err := c.runSteps(ctx, c.bind(nil), steps)
	report.Steps = append(report.Steps, counts...)
	return err
}

func (c *coordinator) runSteps(ctx context.Context, s stores, steps []step) ([]audit.StepCount, error) {
	counts := make([]audit.StepCount, 0, len(steps))
	for _, st := range steps {
		rows, err := st.run(ctx, s, counts)
		if err != nil {
			return counts, c.stepError(ctx, st.name, counts, err)
		}
		counts = append(counts, audit.StepCount{Step: st.name, Rows: rows})
	}
	return counts, nil
}

func (c *coordinator) stepError(ctx context.Context, name string, done []audit.StepCount, err error) error {
	c.metrics.IncCascadeFailure(name)
	completed := make([]string, 0, len(done))
	for _, count := range done {
		completed = append(completed, count.Step)
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"step": name, "atomic": c.atomic})
		c.logg.Error(logCtx, "cascade.step_failed", err)
	}

	code := pkgerrors.CodeDependency
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		code = typed.Code()
	}
	details := map[string]any{"step": name, "completed_steps": completed, "atomic": c.atomic}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("cascade step %s failed", name)).WithDetails(details)
}

// auctionSteps removes a set of auctions and their children. ids is read
// when each step runs so it can depend on an earlier listing step.
func auctionSteps(ids func() []uuid.UUID) []step {
	return []step{
		{StepClearWinningBid, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.auctions.ClearWinningBid(ctx, ids())
		}},
		{StepDeleteTrips, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.trips.DeleteByAuctions(ctx, ids())
		}},
		{StepDeleteAuctionNotifications, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.notifications.DeleteByAuctions(ctx, ids())
		}},
		{StepDeleteAuctionAuditLogs, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.audit.DeleteByAuctions(ctx, ids())
		}},
		{StepDeleteBids, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.bids.DeleteByAuctions(ctx, ids())
		}},
		{StepDeleteAuctions, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.auctions.DeleteByIDs(ctx, ids())
		}},
	}
}

// recordStep writes the deletion's own audit row. The row references neither
// the removed auction nor the removed profile.
func recordStep(build func(done []audit.StepCount) audit.Entry) step {
	return step{StepRecordAudit, func(ctx context.Context, s stores, done []audit.StepCount) (int64, error) {
		if _, err := s.audit.Record(ctx, build(done)); err != nil {
			return 0, err
		}
		return 1, nil
	}}
}

func (c *coordinator) DeleteAuction(ctx context.Context, auctionID uuid.UUID) (*Report, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	auction, err := c.auctions.FindByID(ctx, auctionID)
	if err != nil {
		return nil, notFoundOr(err, "auction not found", "load auction")
	}

	report := &Report{Target: "auction", ID: auctionID, Atomic: c.atomic}
	steps := auctionSteps(func() []uuid.UUID { return []uuid.UUID{auctionID} })
	steps = append(steps, recordStep(func(done []audit.StepCount) audit.Entry {
		return audit.Entry{
			Summary: fmt.Sprintf("auction %q deleted", auction.Title),
			Details: &audit.AuctionDeleted{AuctionID: auction.ID, Title: auction.Title, Steps: done},
		}
	}))
	if err := c.execute(ctx, report, steps); err != nil {
		return nil, err
	}

	c.announce(ctx, changefeed.Change{Table: "auctions", Op: changefeed.OpDelete, AuctionID: &auction.ID, ConsignerID: &auction.CreatedBy})
	return report, nil
}

func (c *coordinator) DeleteConsigner(ctx context.Context, profileID uuid.UUID) (*Report, error) {
	profile, err := c.preflight(ctx, profileID, enums.ProfileRoleConsigner)
	if err != nil {
		return nil, err
	}

	report := &Report{Target: "consigner", ID: profileID, Atomic: c.atomic}
	var auctionIDs []uuid.UUID
	steps := []step{
		{StepListAuctions, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			ids, err := s.auctions.ListIDsByCreator(ctx, profileID)
			auctionIDs = ids
			return int64(len(ids)), err
		}},
	}
	steps = append(steps, auctionSteps(func() []uuid.UUID { return auctionIDs })...)
	steps = append(steps,
		step{StepDeleteUserNotifications, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.notifications.DeleteByUser(ctx, profileID)
		}},
		step{StepDeleteUserAuditLogs, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.audit.DeleteByUser(ctx, profileID)
		}},
		step{StepDeleteProfile, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return deleteProfile(ctx, s, profileID)
		}},
		recordStep(func(done []audit.StepCount) audit.Entry {
			return audit.Entry{
				Summary: fmt.Sprintf("consigner %s deleted", profile.FullName),
				Details: &audit.ProfileDeleted{ProfileID: profileID, Role: profile.Role, Steps: done},
			}
		}),
	)
	if err := c.execute(ctx, report, steps); err != nil {
		return nil, err
	}
	if err := c.deleteIdentity(ctx, report, profileID); err != nil {
		return nil, err
	}

	for _, id := range auctionIDs {
		auctionID := id
		c.announce(ctx, changefeed.Change{Table: "auctions", Op: changefeed.OpDelete, AuctionID: &auctionID, ConsignerID: &profileID})
	}
	return report, nil
}

func (c *coordinator) DeleteDriver(ctx context.Context, profileID uuid.UUID) (*Report, error) {
	profile, err := c.preflight(ctx, profileID, enums.ProfileRoleDriver)
	if err != nil {
		return nil, err
	}

	report := &Report{Target: "driver", ID: profileID, Atomic: c.atomic}
	var (
		touched       []uuid.UUID
		winningBidIDs []uuid.UUID
	)
	steps := []step{
		{StepDeleteUserNotifications, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.notifications.DeleteByUser(ctx, profileID)
		}},
		{StepDeleteUserAuditLogs, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.audit.DeleteByUser(ctx, profileID)
		}},
		{StepClearWinner, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.auctions.ClearWinner(ctx, profileID)
		}},
		{StepClearWinningBidRefs, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			placed, err := s.bids.ListByUser(ctx, profileID)
			if err != nil {
				return 0, err
			}
			touched, winningBidIDs = nil, nil
			for _, bid := range placed {
				touched = append(touched, bid.AuctionID)
				if bid.IsWinningBid {
					winningBidIDs = append(winningBidIDs, bid.ID)
				}
			}
			return s.auctions.ClearWinningBidRefs(ctx, winningBidIDs)
		}},
		{StepDeleteTrips, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.trips.DeleteByDriver(ctx, profileID)
		}},
		{StepDeleteBids, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return s.bids.DeleteByUser(ctx, profileID)
		}},
		{StepRecomputeAggregates, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return recomputeAggregates(ctx, s, touched)
		}},
		{StepDeleteProfile, func(ctx context.Context, s stores, _ []audit.StepCount) (int64, error) {
			return deleteProfile(ctx, s, profileID)
		}},
		recordStep(func(done []audit.StepCount) audit.Entry {
			return audit.Entry{
				Summary: fmt.Sprintf("driver %s deleted", profile.FullName),
				Details: &audit.ProfileDeleted{ProfileID: profileID, Role: profile.Role, Steps: done},
			}
		}),
	}
	if err := c.execute(ctx, report, steps); err != nil {
		return nil, err
	}
	if err := c.deleteIdentity(ctx, report, profileID); err != nil {
		return nil, err
	}

	for _, id := range touched {
		auctionID := id
		c.announce(ctx, changefeed.Change{Table: "bids", Op: changefeed.OpDelete, AuctionID: &auctionID, DriverID: &profileID})
	}
	return report, nil
}

// preflight checks the target and the identity credentials before anything
// is removed.
func (c *coordinator) preflight(ctx context.Context, profileID uuid.UUID, role enums.ProfileRole) (*models.Profile, error) {
	if profileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id required")
	}
	if c.identity == nil || !c.identity.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity provider credentials are not configured").
			WithDetails(map[string]any{"step": StepDeleteIdentity})
	}
	profile, err := c.profiles.FindByID(ctx, profileID)
	if err != nil {
		return nil, notFoundOr(err, string(role)+" not found", "load profile")
	}
	if profile.Role != role {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("profile is a %s, not a %s", profile.Role, role))
	}
	return profile, nil
}

// deleteIdentity runs after the database steps committed; the provider call
// cannot join the transaction.
func (c *coordinator) deleteIdentity(ctx context.Context, report *Report, profileID uuid.UUID) error {
	if err := c.identity.DeleteUser(ctx, profileID); err != nil {
		return c.stepError(ctx, StepDeleteIdentity, report.Steps, err)
	}
	report.Steps = append(report.Steps, audit.StepCount{Step: StepDeleteIdentity, Rows: 1})
	report.IdentityDeleted = true
	return nil
}

// deleteProfile treats a profile removed concurrently as already deleted.
func deleteProfile(ctx context.Context, s stores, profileID uuid.UUID) (int64, error) {
	return s.profiles.Delete(ctx, profileID)
}

// recomputeAggregates re-derives the cached fields of auctions that lost
// bids. A winner whose bid is gone stays vacant.
func recomputeAggregates(ctx context.Context, s stores, auctionIDs []uuid.UUID) (int64, error) {
	seen := make(map[uuid.UUID]struct{}, len(auctionIDs))
	var updated int64
	for _, id := range auctionIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		auction, err := s.auctions.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		remaining, err := s.bids.ListByAuction(ctx, id)
		if err != nil {
			return updated, err
		}
		agg := bids.Recompute(remaining, auction.WinningBidID, bids.RetainOrVacate)
		if !bids.Drifted(auction, agg) {
			continue
		}
		if err := s.auctions.SaveAggregate(ctx, id, agg); err != nil {
			return updated, err
		}
		if err := s.bids.SyncWinningFlags(ctx, id, agg.WinningBidID); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (c *coordinator) announce(ctx context.Context, change changefeed.Change) {
	change.At = c.now().UTC()
	changefeed.Announce(ctx, c.feed, c.logg, change)
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
