package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/haulbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

func TestActorMarker(t *testing.T) {
	id := uuid.New()
	require.Equal(t, "admin:"+id.String(), Admin(id).Marker())
	require.Equal(t, "system:auction-expiry", System("auction-expiry").Marker())
	require.Equal(t, "system", ActorFrom(context.Background()).Marker())

	ctx := WithActor(context.Background(), Admin(id))
	require.Equal(t, ActorKindAdmin, ActorFrom(ctx).Kind)
}

func TestEntryBuildStampsEveryVariant(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.FixedZone("x", 3600))
	actor := System("aggregate-reconcile")
	variants := []Details{
		&AuctionCreated{Title: "Load"},
		&AuctionUpdated{Fields: []string{"title"}},
		&AuctionDeleted{AuctionID: uuid.New()},
		&StatusChanged{From: enums.AuctionStatusActive, To: enums.AuctionStatusCancelled, WinnerCleared: true},
		&BidRecorded{BidID: uuid.New(), NewAmount: decimal.NewFromInt(300)},
		&BidDeleted{BidID: uuid.New(), Amount: decimal.NewFromInt(500)},
		&AggregatesReconciled{BidCount: 2},
		&ProfileDeleted{ProfileID: uuid.New(), Role: enums.ProfileRoleDriver},
	}

	for _, details := range variants {
		row, err := Entry{Details: details}.Build(at, actor)
		require.NoError(t, err)
		require.Equal(t, details.Action(), row.Action)
		require.Equal(t, details.Action().String(), row.Summary)

		var generic map[string]any
		require.NoError(t, json.Unmarshal(row.Details, &generic))
		require.Equal(t, "system:aggregate-reconcile", generic["actor"])
		require.Equal(t, "2026-04-02T08:30:00Z", generic["timestamp"])

		decoded, err := Decode(row.Action, row.Details)
		require.NoError(t, err)
		require.IsType(t, details, decoded)
	}
}

func TestDecodeBidRecordedKeepsAmounts(t *testing.T) {
	previous := decimal.RequireFromString("500.00")
	winner := uuid.New()
	row, err := Entry{Details: &BidRecorded{
		BidID:          uuid.New(),
		PreviousAmount: &previous,
		NewAmount:      decimal.RequireFromString("600.00"),
		Reelected:      true,
		WinningBidID:   &winner,
	}}.Build(time.Now(), Admin(uuid.New()))
	require.NoError(t, err)

	decoded, err := Decode(row.Action, row.Details)
	require.NoError(t, err)
	bid := decoded.(*BidRecorded)
	require.True(t, bid.PreviousAmount.Equal(previous))
	require.True(t, bid.Reelected)
	require.Equal(t, winner, *bid.WinningBidID)
}

func TestDecodeRejectsUnknownAction(t *testing.T) {
	_, err := Decode(enums.AuditAction("mystery"), []byte(`{}`))
	require.Error(t, err)

	_, err = Entry{}.Build(time.Now(), System("x"))
	require.Error(t, err)
}

func TestRepositoryRecordAndDelete(t *testing.T) {
	conn := dbtest.Open(t)
	consigner := dbtest.SeedProfile(t, conn, enums.ProfileRoleConsigner)
	driver := dbtest.SeedProfile(t, conn, enums.ProfileRoleDriver)
	auction := dbtest.SeedAuction(t, conn, consigner.ID, nil)

	repo := NewRepository(conn)
	ctx := WithActor(context.Background(), Admin(uuid.New()))

	row, err := repo.Record(ctx, Entry{
		AuctionID: &auction.ID,
		UserID:    &driver.ID,
		Details:   &BidDeleted{BidID: uuid.New(), BidderID: driver.ID, Amount: decimal.NewFromInt(450)},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, row.ID)

	_, err = repo.Record(ctx, Entry{UserID: &driver.ID, Details: &AuctionUpdated{Fields: []string{"title"}}})
	require.NoError(t, err)

	rows, err := repo.ListByAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	decoded, err := Decode(rows[0].Action, rows[0].Details)
	require.NoError(t, err)
	require.Equal(t, driver.ID, decoded.(*BidDeleted).BidderID)

	deleted, err := repo.DeleteByAuctions(ctx, []uuid.UUID{auction.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = repo.DeleteByUser(ctx, driver.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	require.Zero(t, dbtest.Count(t, conn, "audit_logs", ""))

	deleted, err = repo.DeleteByAuctions(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, deleted)
}
