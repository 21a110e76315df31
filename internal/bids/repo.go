package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
)

// Repository persists bids.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	FindByAuctionAndUser(ctx context.Context, auctionID, userID uuid.UUID) (*models.Bid, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	Create(ctx context.Context, bid *models.Bid) error
	UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	SyncWinningFlags(ctx context.Context, auctionID uuid.UUID, winningBidID *uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Bid, error)
	DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bids repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) FindByAuctionAndUser(ctx context.Context, auctionID, userID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND user_id = ?", auctionID, userID).
		First(&bid).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount ASC, created_at ASC, id ASC").
		Find(&bids).Error
	return bids, err
}

func (r *repository) Create(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&models.Bid{}).Where("id = ?", id).Update("amount", amount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Bid{})
	return result.RowsAffected, result.Error
}

// SyncWinningFlags sets is_winning_bid on exactly the given bid and clears it
// on every other bid of the auction. A nil winningBidID clears all flags.
func (r *repository) SyncWinningFlags(ctx context.Context, auctionID uuid.UUID, winningBidID *uuid.UUID) error {
	reset := r.db.WithContext(ctx).Model(&models.Bid{}).Where("auction_id = ? AND is_winning_bid = ?", auctionID, true)
	if winningBidID != nil {
		reset = reset.Where("id <> ?", *winningBidID)
	}
	if err := reset.Update("is_winning_bid", false).Error; err != nil {
		return err
	}
	if winningBidID == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND auction_id = ?", *winningBidID, auctionID).
		Update("is_winning_bid", true).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&bids).Error
	return bids, err
}

func (r *repository) DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error) {
	if len(auctionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("auction_id IN ?", auctionIDs).Delete(&models.Bid{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Bid{})
	return result.RowsAffected, result.Error
}
