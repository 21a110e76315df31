package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/api/responses"
	"github.com/angelmondragon/haulbid-backend/api/validators"
	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/pagination"
	"github.com/angelmondragon/haulbid-backend/pkg/types"
)

type createAuctionRequest struct {
	ConsignerID         uuid.UUID        `json:"consigner_id" validate:"required"`
	Title               string           `json:"title" validate:"required,max=200"`
	Description         *string          `json:"description" validate:"omitempty,max=2000"`
	PickupLocation      string           `json:"pickup_location" validate:"required,max=500"`
	DropoffLocation     string           `json:"dropoff_location" validate:"required,max=500"`
	CargoType           *string          `json:"cargo_type" validate:"omitempty,max=100"`
	CargoWeightKg       *decimal.Decimal `json:"cargo_weight_kg"`
	VehicleType         *string          `json:"vehicle_type" validate:"omitempty,max=100"`
	VehicleRequirements *string          `json:"vehicle_requirements" validate:"omitempty,max=1000"`
	DurationMinutes     int              `json:"duration_minutes" validate:"required"`
	StartTime           *time.Time       `json:"start_time"`
}

func (p createAuctionRequest) toInput() auctions.CreateInput {
	return auctions.CreateInput{
		ConsignerID:         p.ConsignerID,
		Title:               p.Title,
		Description:         p.Description,
		PickupLocation:      p.PickupLocation,
		DropoffLocation:     p.DropoffLocation,
		CargoType:           p.CargoType,
		CargoWeightKg:       p.CargoWeightKg,
		VehicleType:         p.VehicleType,
		VehicleRequirements: p.VehicleRequirements,
		DurationMinutes:     p.DurationMinutes,
		StartTime:           p.StartTime,
	}
}

type updateAuctionRequest struct {
	Title               *string                         `json:"title" validate:"omitempty,max=200"`
	Description         types.Nullable[string]          `json:"description"`
	PickupLocation      *string                         `json:"pickup_location" validate:"omitempty,max=500"`
	DropoffLocation     *string                         `json:"dropoff_location" validate:"omitempty,max=500"`
	CargoType           types.Nullable[string]          `json:"cargo_type"`
	CargoWeightKg       types.Nullable[decimal.Decimal] `json:"cargo_weight_kg"`
	VehicleType         types.Nullable[string]          `json:"vehicle_type"`
	VehicleRequirements types.Nullable[string]          `json:"vehicle_requirements"`
	EndTime             *time.Time                      `json:"end_time"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminCreateAuction opens a new reverse auction for a consigner.
func AdminCreateAuction(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auction service"))
			return
		}
		var payload createAuctionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auction, err := svc.Create(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, auction)
	}
}

// AdminListAuctions pages through auctions newest first.
func AdminListAuctions(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auction service"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		consignerID, err := validators.ParseQueryUUID(r, "consigner_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		driverID, err := validators.ParseQueryUUID(r, "driver_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), auctions.ListInput{
			Status:      validators.SanitizeString(r.URL.Query().Get("status"), 32),
			ConsignerID: consignerID,
			BidderID:    driverID,
			Limit:       limit,
			Cursor:      strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminAuctionDetail returns the auction with its ranked bids.
func AdminAuctionDetail(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auction service"))
			return
		}
		id, err := uuidParam(r, "auctionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

func AdminUpdateAuction(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auction service"))
			return
		}
		id, err := uuidParam(r, "auctionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateAuctionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auction, err := svc.Update(r.Context(), id, auctions.UpdateInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, auction)
	}
}

// AdminChangeAuctionStatus moves an active auction to a terminal status.
func AdminChangeAuctionStatus(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auction service"))
			return
		}
		id, err := uuidParam(r, "auctionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ChangeStatus(r.Context(), id, strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
