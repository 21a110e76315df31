package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

func TestRepositoryFindAndDelete(t *testing.T) {
	conn := dbtest.Open(t)
	driver := dbtest.SeedProfile(t, conn, enums.ProfileRoleDriver)
	repo := NewRepository(conn)
	ctx := context.Background()

	found, err := repo.FindByID(ctx, driver.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ProfileRoleDriver, found.Role)

	_, err = repo.FindByID(ctx, uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	deleted, err := repo.Delete(ctx, driver.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = repo.Delete(ctx, driver.ID)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestRepositoryDeleteBlockedByReferences(t *testing.T) {
	conn := dbtest.Open(t)
	consigner := dbtest.SeedProfile(t, conn, enums.ProfileRoleConsigner)
	dbtest.SeedAuction(t, conn, consigner.ID, nil)

	_, err := NewRepository(conn).Delete(context.Background(), consigner.ID)
	require.Error(t, err)
}
