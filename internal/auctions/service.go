package auctions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/haulbid-backend/internal/audit"
	"github.com/angelmondragon/haulbid-backend/internal/notifications"
	"github.com/angelmondragon/haulbid-backend/internal/profiles"
	"github.com/angelmondragon/haulbid-backend/internal/trips"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/pagination"
	"github.com/angelmondragon/haulbid-backend/pkg/types"
)

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 7 * 24 * 60
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service covers auction reads, descriptive edits and the status lifecycle.
// Bid mutations live in the bids engine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Auction, error)
	Get(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	List(ctx context.Context, input ListInput) (*types.Page[models.Auction], error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Auction, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status string) (*StatusResult, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CreateInput describes a new auction. StartTime defaults to now.
type CreateInput struct {
	ConsignerID         uuid.UUID
	Title               string
	Description         *string
	PickupLocation      string
	DropoffLocation     string
	CargoType           *string
	CargoWeightKg       *decimal.Decimal
	VehicleType         *string
	VehicleRequirements *string
	DurationMinutes     int
	StartTime           *time.Time
}

// UpdateInput patches descriptive fields. Status, winner and aggregates are
// not editable here.
type UpdateInput struct {
	Title               *string
	Description         types.Nullable[string]
	PickupLocation      *string
	DropoffLocation     *string
	CargoType           types.Nullable[string]
	CargoWeightKg       types.Nullable[decimal.Decimal]
	VehicleType         types.Nullable[string]
	VehicleRequirements types.Nullable[string]
	EndTime             *time.Time
}

type ListInput struct {
	Status      string
	ConsignerID *uuid.UUID
	BidderID    *uuid.UUID
	Limit       int
	Cursor      string
}

// Snapshot is the full state a viewer re-fetches after a change signal.
type Snapshot struct {
	Auction models.Auction `json:"auction"`
	Bids    []models.Bid   `json:"bids"`
}

// ServiceParams bundles the auction service collaborators.
type ServiceParams struct {
	Tx            txRunner
	Repo          Repository
	Profiles      profiles.Repository
	Trips         trips.Repository
	Audit         audit.Repository
	Notifications notifications.Repository
	Notifier      notifications.Notifier
	Feed          changefeed.Publisher
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	tx            txRunner
	repo          Repository
	profiles      profiles.Repository
	trips         trips.Repository
	audit         audit.Repository
	notifications notifications.Repository
	notifier      notifications.Notifier
	feed          changefeed.Publisher
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Trips == nil {
		return nil, fmt.Errorf("trips repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.NewNotifier(now)
	}
	return &service{
		tx:            params.Tx,
		repo:          params.Repo,
		profiles:      params.Profiles,
		trips:         params.Trips,
		audit:         params.Audit,
		notifications: params.Notifications,
		notifier:      notifier,
		feed:          params.Feed,
		logg:          params.Logger,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Auction, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	start := s.now().UTC()
	if input.StartTime != nil {
		start = input.StartTime.UTC()
	}
	auction := &models.Auction{
		ID:                  uuid.New(),
		CreatedBy:           input.ConsignerID,
		Title:               strings.TrimSpace(input.Title),
		Description:         trimmed(input.Description),
		PickupLocation:      strings.TrimSpace(input.PickupLocation),
		DropoffLocation:     strings.TrimSpace(input.DropoffLocation),
		CargoType:           trimmed(input.CargoType),
		CargoWeightKg:       input.CargoWeightKg,
		VehicleType:         trimmed(input.VehicleType),
		VehicleRequirements: trimmed(input.VehicleRequirements),
		Status:              enums.AuctionStatusActive,
		StartTime:           start,
		EndTime:             start.Add(time.Duration(input.DurationMinutes) * time.Minute),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		consigner, err := s.profiles.WithTx(tx).FindByID(ctx, input.ConsignerID)
		if err != nil {
			return notFoundOr(err, "consigner not found", "load consigner")
		}
		if consigner.Role != enums.ProfileRoleConsigner {
			return pkgerrors.New(pkgerrors.CodeValidation, "auctions can only be created for consigners")
		}
		if err := s.repo.WithTx(tx).Create(ctx, auction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create auction")
		}
		_, err = s.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &auction.ID,
			UserID:    &consigner.ID,
			Summary:   fmt.Sprintf("auction %q created", auction.Title),
			Details: &audit.AuctionCreated{
				Title:           auction.Title,
				ConsignerID:     consigner.ID,
				DurationMinutes: input.DurationMinutes,
				StartTime:       auction.StartTime,
				EndTime:         auction.EndTime,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record auction audit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, auction, changefeed.OpInsert)
	return auction, nil
}

func validateCreate(input CreateInput) error {
	details := map[string]string{}
	if input.ConsignerID == uuid.Nil {
		details["consigner_id"] = "is required"
	}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "is required"
	}
	if strings.TrimSpace(input.PickupLocation) == "" {
		details["pickup_location"] = "is required"
	}
	if strings.TrimSpace(input.DropoffLocation) == "" {
		details["dropoff_location"] = "is required"
	}
	if input.DurationMinutes < MinDurationMinutes || input.DurationMinutes > MaxDurationMinutes {
		details["duration_minutes"] = fmt.Sprintf("must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}
	if input.CargoWeightKg != nil && !input.CargoWeightKg.IsPositive() {
		details["cargo_weight_kg"] = "must be greater than zero"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	auction, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "auction not found", "load auction")
	}
	bids, err := s.repo.ListBids(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	return &Snapshot{Auction: *auction, Bids: bids}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*types.Page[models.Auction], error) {
	params := listParams{
		ConsignerID: input.ConsignerID,
		BidderID:    input.BidderID,
		Limit:       input.Limit,
	}
	if strings.TrimSpace(input.Status) != "" {
		status, err := enums.ParseAuctionStatus(strings.TrimSpace(input.Status))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor

	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auctions")
	}
	page := &types.Page[models.Auction]{Items: rows}
	if page.Items == nil {
		page.Items = []models.Auction{}
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Auction, error) {
	fields, err := patchFields(input)
	if err != nil {
		return nil, err
	}

	var auction *models.Auction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "auction not found", "load auction")
		}
		if input.EndTime != nil {
			if current.Status != enums.AuctionStatusActive {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "end_time can only change while the auction is active")
			}
			end := input.EndTime.UTC()
			if !end.After(current.StartTime) {
				return pkgerrors.New(pkgerrors.CodeValidation, "end_time must be after start_time")
			}
			if end.Sub(current.StartTime) > MaxDurationMinutes*time.Minute {
				return pkgerrors.New(pkgerrors.CodeValidation, "auctions cannot run longer than 7 days")
			}
			fields["end_time"] = end
		}

		if err := repo.UpdateFields(ctx, id, fields); err != nil {
			return notFoundOr(err, "auction not found", "update auction")
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		_, err = s.audit.WithTx(tx).Record(ctx, audit.Entry{
			AuctionID: &id,
			Summary:   "auction fields updated: " + strings.Join(names, ", "),
			Details:   &audit.AuctionUpdated{Fields: names},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record auction audit")
		}

		auction, err = repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "auction not found", "reload auction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, auction, changefeed.OpUpdate)
	return auction, nil
}

func patchFields(input UpdateInput) (map[string]any, error) {
	fields := map[string]any{}
	required := map[string]*string{
		"title":            input.Title,
		"pickup_location":  input.PickupLocation,
		"dropoff_location": input.DropoffLocation,
	}
	for column, value := range required {
		if value == nil {
			continue
		}
		if strings.TrimSpace(*value) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, column+" cannot be empty")
		}
		fields[column] = strings.TrimSpace(*value)
	}

	optional := map[string]types.Nullable[string]{
		"description":          input.Description,
		"cargo_type":           input.CargoType,
		"vehicle_type":         input.VehicleType,
		"vehicle_requirements": input.VehicleRequirements,
	}
	for column, value := range optional {
		if !value.Valid {
			continue
		}
		fields[column] = trimmed(value.Value)
	}

	if input.CargoWeightKg.Valid {
		if input.CargoWeightKg.Set() && !input.CargoWeightKg.Value.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cargo_weight_kg must be greater than zero")
		}
		fields["cargo_weight_kg"] = input.CargoWeightKg.Value
	}

	if len(fields) == 0 && input.EndTime == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updatable fields provided")
	}
	return fields, nil
}

func (s *service) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	rows, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired auctions")
	}
	return rows, nil
}

func (s *service) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListIDsByStatus(ctx, enums.AuctionStatusActive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active auctions")
	}
	return ids, nil
}

func (s *service) announce(ctx context.Context, auction *models.Auction, op changefeed.Op) {
	if auction == nil {
		return
	}
	auctionID, consignerID := auction.ID, auction.CreatedBy
	changefeed.Announce(ctx, s.feed, s.logg, changefeed.Change{
		Table:       "auctions",
		Op:          op,
		AuctionID:   &auctionID,
		ConsignerID: &consignerID,
		DriverID:    auction.WinnerID,
		At:          s.now().UTC(),
	})
}

// trimmed returns nil for nil or blank input.
func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	if out == "" {
		return nil
	}
	return &out
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
