package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TripType enum constants
const (
	TripFirst  = "first trip"
	TripSecond = "second trip"
)

// PaymentMethod enum constants
const (
	PaymentUPI  = "upi"
	PaymentCash = "cash"
)

// PaymentStatus enum constants
const (
	PaymentPaid    = "paid"
	PaymentPending = "pending"
)

// Invoice records a single truck-load transaction (e-challan).
// BranchID snapshots the creator's branch at creation time; it does not follow
// the creator if they are later reassigned. Rows are never hard-deleted.
type Invoice struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChallanNo     string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"challan_no"`
	CreatedByID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"created_by_id"`
	CreatedBy     *User            `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	BranchID      *uuid.UUID       `gorm:"type:uuid;index" json:"branch_id"`
	Branch        *Branch          `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	Trip          string           `gorm:"type:varchar(20);not null" json:"trip"` // "first trip", "second trip"
	PoliceStation string           `gorm:"type:varchar(255)" json:"police_station"`
	CarNumber     string           `gorm:"type:varchar(20);not null" json:"car_number"`
	PhoneNumber   string           `gorm:"type:varchar(15);not null" json:"phone_number"`
	Name          string           `gorm:"type:varchar(255);not null" json:"name"` // consignee
	Location      string           `gorm:"type:varchar(255);not null" json:"location"`
	Wheels        int              `gorm:"not null" json:"wheels"`
	Cft           float64          `gorm:"not null" json:"cft"` // volume in cubic feet
	TotalCost     *decimal.Decimal `gorm:"type:decimal(18,4)" json:"total_cost"`
	PaymentMethod string           `gorm:"type:varchar(10);not null" json:"payment_method"` // "upi", "cash"
	PaidAmount    *decimal.Decimal `gorm:"type:decimal(18,4)" json:"paid_amount"`
	PaymentStatus string           `gorm:"type:varchar(10);not null;default:'pending';index" json:"payment_status"`
	Remarks       string           `gorm:"type:text" json:"remarks"`
	ObjectKey     *string          `gorm:"type:varchar(500)" json:"object_key"` // primary stored object, set on attach confirmation
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
