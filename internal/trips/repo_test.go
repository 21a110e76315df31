package trips

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

func TestRepositoryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	consigner := dbtest.SeedProfile(t, conn, enums.ProfileRoleConsigner)
	driver := dbtest.SeedProfile(t, conn, enums.ProfileRoleDriver)
	auction := dbtest.SeedAuction(t, conn, consigner.ID, nil)
	other := dbtest.SeedAuction(t, conn, consigner.ID, nil)

	repo := NewRepository(conn)
	ctx := context.Background()
	for _, auctionID := range []uuid.UUID{auction.ID, other.ID} {
		require.NoError(t, repo.Create(ctx, &models.Trip{
			ID:          uuid.New(),
			AuctionID:   auctionID,
			DriverID:    driver.ID,
			ConsignerID: consigner.ID,
			Status:      enums.TripStatusInProgress,
			AgreedPrice: decimal.NewFromInt(300),
		}))
	}

	trip, err := repo.FindByAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, driver.ID, trip.DriverID)
	require.True(t, trip.AgreedPrice.Equal(decimal.NewFromInt(300)))

	deleted, err := repo.DeleteByAuctions(ctx, []uuid.UUID{auction.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = repo.FindByAuction(ctx, auction.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	deleted, err = repo.DeleteByDriver(ctx, driver.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = repo.DeleteByConsigner(ctx, consigner.ID)
	require.NoError(t, err)
	require.Zero(t, deleted)
}
