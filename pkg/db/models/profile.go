package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Profile mirrors an identity-provider user with marketplace fields. The ID
// equals the identity record's ID.
type Profile struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Role          enums.ProfileRole `gorm:"type:text;not null" json:"role"`
	FullName      string            `gorm:"type:text;not null" json:"full_name"`
	Email         string            `gorm:"type:text;not null" json:"email"`
	Phone         *string           `gorm:"type:text" json:"phone,omitempty"`
	CompanyName   *string           `gorm:"type:text" json:"company_name,omitempty"`
	VehicleType   *string           `gorm:"type:text" json:"vehicle_type,omitempty"`
	VehicleNumber *string           `gorm:"type:text" json:"vehicle_number,omitempty"`
	LicenseNumber *string           `gorm:"type:text" json:"license_number,omitempty"`
	CreatedAt     time.Time         `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}
