package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

type statusCall struct {
	id     uuid.UUID
	status string
	actor  string
}

type fakeExpiryAuctions struct {
	expired []models.Auction
	listErr error
	errs    map[uuid.UUID]error
	calls   []statusCall
	cutoff  time.Time
}

func (f *fakeExpiryAuctions) ListExpired(_ context.Context, now time.Time, _ int) ([]models.Auction, error) {
	f.cutoff = now
	return f.expired, f.listErr
}

func (f *fakeExpiryAuctions) ChangeStatus(ctx context.Context, id uuid.UUID, status string) (*auctions.StatusResult, error) {
	f.calls = append(f.calls, statusCall{id: id, status: status, actor: audit.ActorFrom(ctx).Marker()})
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return &auctions.StatusResult{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestAuctionExpiryJobPicksTerminalStatusByWinner(t *testing.T) {
	winner, winningBid := uuid.New(), uuid.New()
	withWinner := models.Auction{ID: uuid.New(), Status: enums.AuctionStatusActive, WinnerID: &winner, WinningBidID: &winningBid}
	withoutWinner := models.Auction{ID: uuid.New(), Status: enums.AuctionStatusActive}
	drifted := models.Auction{ID: uuid.New(), Status: enums.AuctionStatusActive, WinnerID: &winner}
	fake := &fakeExpiryAuctions{expired: []models.Auction{withWinner, withoutWinner, drifted}}

	job, err := NewAuctionExpiryJob(AuctionExpiryJobParams{Logger: testLogger(), Auctions: fake})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.(*auctionExpiryJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !fake.cutoff.Equal(now) {
		t.Fatalf("expected cutoff %s, got %s", now, fake.cutoff)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 status changes, got %d", len(fake.calls))
	}
	if fake.calls[0].status != string(enums.AuctionStatusCompleted) {
		t.Fatalf("auction with winner should complete, got %s", fake.calls[0].status)
	}
	if fake.calls[1].status != string(enums.AuctionStatusIncomplete) {
		t.Fatalf("auction without winner should be incomplete, got %s", fake.calls[1].status)
	}
	if fake.calls[2].status != string(enums.AuctionStatusIncomplete) {
		t.Fatalf("auction missing its winning bid should be incomplete, got %s", fake.calls[2].status)
	}
	if fake.calls[0].actor != "system:auction-expiry" {
		t.Fatalf("unexpected actor %q", fake.calls[0].actor)
	}
}

func TestAuctionExpiryJobSkipsRacesAndCombinesFailures(t *testing.T) {
	raced := models.Auction{ID: uuid.New()}
	broken := models.Auction{ID: uuid.New()}
	fine := models.Auction{ID: uuid.New()}
	fake := &fakeExpiryAuctions{
		expired: []models.Auction{raced, broken, fine},
		errs: map[uuid.UUID]error{
			raced.ID:  pkgerrors.New(pkgerrors.CodeStateConflict, "auction is no longer active"),
			broken.ID: pkgerrors.New(pkgerrors.CodeDependency, "db down"),
		},
	}
	job, err := NewAuctionExpiryJob(AuctionExpiryJobParams{Logger: testLogger(), Auctions: fake})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure for broken auction")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("every auction should be attempted, got %d", len(fake.calls))
	}
}

func TestAuctionExpiryJobListFailure(t *testing.T) {
	fake := &fakeExpiryAuctions{listErr: errors.New("timeout")}
	job, _ := NewAuctionExpiryJob(AuctionExpiryJobParams{Logger: testLogger(), Auctions: fake})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

type fakeActiveLister struct {
	ids []uuid.UUID
}

func (f fakeActiveLister) ListActiveIDs(context.Context) ([]uuid.UUID, error) { return f.ids, nil }

type fakeReconciler struct {
	changed map[uuid.UUID]bool
	errs    map[uuid.UUID]error
	seen    []uuid.UUID
	actors  []string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, id uuid.UUID) (bool, error) {
	f.seen = append(f.seen, id)
	f.actors = append(f.actors, audit.ActorFrom(ctx).Marker())
	return f.changed[id], f.errs[id]
}

func TestAggregateReconcileJob(t *testing.T) {
	drifted, clean, gone, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	engine := &fakeReconciler{
		changed: map[uuid.UUID]bool{drifted: true},
		errs: map[uuid.UUID]error{
			gone:   pkgerrors.New(pkgerrors.CodeNotFound, "auction not found"),
			broken: errors.New("deadlock"),
		},
	}
	job, err := NewAggregateReconcileJob(AggregateReconcileJobParams{
		Logger:   testLogger(),
		Auctions: fakeActiveLister{ids: []uuid.UUID{drifted, clean, gone, broken}},
		Engine:   engine,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "aggregate-reconcile" {
		t.Fatalf("unexpected name %s", job.Name())
	}
	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the broken auction to surface")
	}
	if len(engine.seen) != 4 {
		t.Fatalf("expected 4 reconciles, got %d", len(engine.seen))
	}
	for _, actor := range engine.actors {
		if actor != "system:aggregate-reconcile" {
			t.Fatalf("unexpected actor %q", actor)
		}
	}
}

func TestJobConstructorsRequireDeps(t *testing.T) {
	if _, err := NewAuctionExpiryJob(AuctionExpiryJobParams{}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewAggregateReconcileJob(AggregateReconcileJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected auctions error")
	}
}
