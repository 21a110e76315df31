package trips

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
)

// Repository persists delivery trips.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, trip *models.Trip) error
	FindByAuction(ctx context.Context, auctionID uuid.UUID) (*models.Trip, error)
	DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error)
	DeleteByDriver(ctx context.Context, driverID uuid.UUID) (int64, error)
	DeleteByConsigner(ctx context.Context, consignerID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, trip *models.Trip) error {
	return r.db.WithContext(ctx).Create(trip).Error
}

// FindByAuction returns gorm.ErrRecordNotFound when no trip exists.
func (r *repository) FindByAuction(ctx context.Context, auctionID uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	if err := r.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&trip).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *repository) DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error) {
	if len(auctionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("auction_id IN ?", auctionIDs).Delete(&models.Trip{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByDriver(ctx context.Context, driverID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("driver_id = ?", driverID).Delete(&models.Trip{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByConsigner(ctx context.Context, consignerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("consigner_id = ?", consignerID).Delete(&models.Trip{})
	return result.RowsAffected, result.Error
}
