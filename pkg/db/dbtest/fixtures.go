package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Epoch anchors fixture timestamps so ordering assertions are stable.
var Epoch = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

// SeedProfile inserts a profile with the given role.
func SeedProfile(t testing.TB, db *gorm.DB, role enums.ProfileRole) models.Profile {
	t.Helper()
	id := uuid.New()
	profile := models.Profile{
		ID:        id,
		Role:      role,
		FullName:  string(role) + " " + id.String()[:8],
		Email:     id.String()[:8] + "@haulbid.test",
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

// SeedAuction inserts an active auction owned by consignerID. mutate may
// adjust fields before insert.
func SeedAuction(t testing.TB, db *gorm.DB, consignerID uuid.UUID, mutate func(*models.Auction)) models.Auction {
	t.Helper()
	auction := models.Auction{
		ID:              uuid.New(),
		CreatedBy:       consignerID,
		Title:           "Pallets to Monterrey",
		PickupLocation:  "Laredo, TX",
		DropoffLocation: "Monterrey, NL",
		Status:          enums.AuctionStatusActive,
		StartTime:       Epoch,
		EndTime:         Epoch.Add(2 * time.Hour),
		CreatedAt:       Epoch,
		UpdatedAt:       Epoch,
	}
	if mutate != nil {
		mutate(&auction)
	}
	if err := db.Create(&auction).Error; err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	return auction
}

// SeedBid inserts a bid without touching the auction aggregates.
func SeedBid(t testing.TB, db *gorm.DB, auctionID, bidderID uuid.UUID, amount string, createdAt time.Time) models.Bid {
	t.Helper()
	bid := models.Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		UserID:    bidderID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := db.Create(&bid).Error; err != nil {
		t.Fatalf("seed bid: %v", err)
	}
	return bid
}

// Count returns the number of rows in table matching the optional where clause.
func Count(t testing.TB, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	query := db.Table(table)
	if where != "" {
		query = query.Where(where, args...)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
