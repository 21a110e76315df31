package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
)

// Entry is an audit record before persistence.
type Entry struct {
	AuctionID *uuid.UUID
	UserID    *uuid.UUID
	Summary   string
	Details   Details
}

// Build stamps the details with at and actor and encodes the row.
func (e Entry) Build(at time.Time, actor Actor) (*models.AuditLog, error) {
	if e.Details == nil {
		return nil, fmt.Errorf("audit details are required")
	}
	e.Details.stamp(at, actor.Marker())
	payload, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("encode audit details: %w", err)
	}
	summary := e.Summary
	if summary == "" {
		summary = e.Details.Action().String()
	}
	return &models.AuditLog{
		ID:        uuid.New(),
		AuctionID: e.AuctionID,
		UserID:    e.UserID,
		Action:    e.Details.Action(),
		Summary:   summary,
		Details:   payload,
		CreatedAt: at.UTC(),
	}, nil
}

// Repository persists and bulk-removes audit rows. Rows are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, entry Entry) (*models.AuditLog, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.AuditLog, error)
	DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns an audit repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) Record(ctx context.Context, entry Entry) (*models.AuditLog, error) {
	row, err := entry.Build(r.now(), ActorFrom(ctx))
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repository) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) DeleteByAuctions(ctx context.Context, auctionIDs []uuid.UUID) (int64, error) {
	if len(auctionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("auction_id IN ?", auctionIDs).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}
