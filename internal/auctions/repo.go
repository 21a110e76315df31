package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	"github.com/angelmondragon/haulbid-backend/pkg/pagination"
)

// Aggregate is the cached, derived part of an auction row.
type Aggregate struct {
	BidCount         int
	LowestBidAmount  decimal.NullDecimal
	HighestBidAmount decimal.NullDecimal
	WinningBidID     *uuid.UUID
	WinnerID         *uuid.UUID
}

// Repository persists auctions. It also owns the few bid-table reads the
// auction views and lifecycle need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, auction *models.Auction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params listParams) ([]models.Auction, *pagination.Cursor, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	SaveAggregate(ctx context.Context, id uuid.UUID, agg Aggregate) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.AuctionStatus, clearWinner bool) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	ListIDsByStatus(ctx context.Context, status enums.AuctionStatus) ([]uuid.UUID, error)
	ListIDsByCreator(ctx context.Context, consignerID uuid.UUID) ([]uuid.UUID, error)

	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	FindBid(ctx context.Context, bidID uuid.UUID) (*models.Bid, error)
	ClearBidWinningFlags(ctx context.Context, auctionID uuid.UUID) error

	ClearWinningBid(ctx context.Context, auctionIDs []uuid.UUID) (int64, error)
	ClearWinner(ctx context.Context, winnerID uuid.UUID) (int64, error)
	ClearWinningBidRefs(ctx context.Context, bidIDs []uuid.UUID) (int64, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an auctions repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listParams struct {
	Status      *enums.AuctionStatus
	ConsignerID *uuid.UUID
	BidderID    *uuid.UUID
	Limit       int
	Cursor      *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, auction *models.Auction) error {
	return r.db.WithContext(ctx).Create(auction).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&auction).Error; err != nil {
		return nil, err
	}
	return &auction, nil
}

// FindByIDForUpdate row-locks the auction for the rest of the transaction so
// concurrent bid mutations on one auction serialize.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Auction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Auction{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.ConsignerID != nil {
		query = query.Where("created_by = ?", *params.ConsignerID)
	}
	if params.BidderID != nil {
		query = query.Where("id IN (?)", r.db.Model(&models.Bid{}).Select("auction_id").Where("user_id = ?", *params.BidderID))
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Auction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(a models.Auction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page, next, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&models.Auction{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SaveAggregate(ctx context.Context, id uuid.UUID, agg Aggregate) error {
	result := r.db.WithContext(ctx).Model(&models.Auction{}).Where("id = ?", id).Updates(map[string]any{
		"bid_count":          agg.BidCount,
		"lowest_bid_amount":  agg.LowestBidAmount,
		"highest_bid_amount": agg.HighestBidAmount,
		"winning_bid_id":     agg.WinningBidID,
		"winner_id":          agg.WinnerID,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionStatus moves the auction from one status to another only if it
// is still in from. It reports false when another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.AuctionStatus, clearWinner bool) (bool, error) {
	fields := map[string]any{"status": to}
	if clearWinner {
		fields["winner_id"] = nil
		fields["winning_bid_id"] = nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	query := r.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", enums.AuctionStatusActive, now).
		Order("end_time ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (r *repository) ListIDsByStatus(ctx context.Context, status enums.AuctionStatus) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Auction{}).Where("status = ?", status).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) ListIDsByCreator(ctx context.Context, consignerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Auction{}).Where("created_by = ?", consignerID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// ListBids returns the auction's bids ranked lowest first, ties by age.
func (r *repository) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount ASC, created_at ASC, id ASC").
		Find(&bids).Error
	return bids, err
}

func (r *repository) FindBid(ctx context.Context, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := r.db.WithContext(ctx).Where("id = ?", bidID).First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) ClearBidWinningFlags(ctx context.Context, auctionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("auction_id = ? AND is_winning_bid = ?", auctionID, true).
		Update("is_winning_bid", false).Error
}

// ClearWinningBid nulls the winner pointers so the auctions' bids can be
// deleted.
func (r *repository) ClearWinningBid(ctx context.Context, auctionIDs []uuid.UUID) (int64, error) {
	if len(auctionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id IN ? AND (winning_bid_id IS NOT NULL OR winner_id IS NOT NULL)", auctionIDs).
		Updates(map[string]any{"winning_bid_id": nil, "winner_id": nil})
	return result.RowsAffected, result.Error
}

func (r *repository) ClearWinner(ctx context.Context, winnerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("winner_id = ?", winnerID).
		Updates(map[string]any{"winner_id": nil, "winning_bid_id": nil})
	return result.RowsAffected, result.Error
}

func (r *repository) ClearWinningBidRefs(ctx context.Context, bidIDs []uuid.UUID) (int64, error) {
	if len(bidIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("winning_bid_id IN ?", bidIDs).
		Updates(map[string]any{"winning_bid_id": nil, "winner_id": nil})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Auction{})
	return result.RowsAffected, result.Error
}
