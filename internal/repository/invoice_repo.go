package repository

import (
	"context"
	"errors"
	"time"

	"echallan-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStaleRecord is returned when an optimistic-concurrency guard finds the
// row was modified between read and write. Callers should re-fetch and retry.
var ErrStaleRecord = errors.New("record was modified concurrently")

// InvoiceListFilter narrows and pages the challan listing. A nil BranchID
// means no branch restriction (ultra-admin scope).
type InvoiceListFilter struct {
	BranchID      *uuid.UUID
	PaymentStatus string
	Trip          string
	CarNumber     string // partial match
	Page          int
	Limit         int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, fields map[string]interface{}) error
	SetObjectKey(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, objectKey string) error
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
	StatsByCreator(ctx context.Context, userID uuid.UUID) (model.InvoiceStats, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("CreatedBy").Preload("Branch").First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.BranchID != nil {
			q = q.Where("branch_id = ?", *filter.BranchID)
		}
		if filter.PaymentStatus != "" {
			q = q.Where("payment_status = ?", filter.PaymentStatus)
		}
		if filter.Trip != "" {
			q = q.Where("trip = ?", filter.Trip)
		}
		if filter.CarNumber != "" {
			q = q.Where("car_number ILIKE ?", "%"+filter.CarNumber+"%")
		}
		return q
	}

	if err := apply(db.Model(&model.Invoice{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := apply(db.Preload("CreatedBy").Preload("Branch")).
		Order("updated_at DESC, created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// UpdatePayment applies the given payment fields guarded by the row's
// updated_at value. Zero rows affected on an existing record means a
// concurrent writer got there first.
func (r *invoiceRepository) UpdatePayment(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, fields map[string]interface{}) error {
	return r.guardedUpdate(ctx, id, expectedUpdatedAt, fields)
}

func (r *invoiceRepository) SetObjectKey(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, objectKey string) error {
	return r.guardedUpdate(ctx, id, expectedUpdatedAt, map[string]interface{}{"object_key": objectKey})
}

func (r *invoiceRepository) guardedUpdate(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, fields map[string]interface{}) error {
	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND updated_at = ?", id, expectedUpdatedAt).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleRecord
	}
	return nil
}

func (r *invoiceRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Invoice{}).Where("challan_no LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// StatsByCreator aggregates entry count and paid amounts over the challans a
// user created. COALESCE keeps empty sets at zero instead of null.
func (r *invoiceRepository) StatsByCreator(ctx context.Context, userID uuid.UUID) (model.InvoiceStats, error) {
	var stats model.InvoiceStats

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Invoice{}).Where("created_by_id = ?", userID).Count(&stats.TotalEntries).Error; err != nil {
		return model.InvoiceStats{}, err
	}

	var sums struct {
		TotalAmount   float64
		TotalPaidCash float64
		TotalPaidUPI  float64
	}
	err := db.Model(&model.Invoice{}).
		Select(`COALESCE(SUM(paid_amount), 0) AS total_amount,
			COALESCE(SUM(paid_amount) FILTER (WHERE payment_method = ?), 0) AS total_paid_cash,
			COALESCE(SUM(paid_amount) FILTER (WHERE payment_method = ?), 0) AS total_paid_upi`,
			model.PaymentCash, model.PaymentUPI).
		Where("created_by_id = ? AND payment_status = ?", userID, model.PaymentPaid).
		Scan(&sums).Error
	if err != nil {
		return model.InvoiceStats{}, err
	}

	stats.TotalAmount = sums.TotalAmount
	stats.TotalPaidCash = sums.TotalPaidCash
	stats.TotalPaidUPI = sums.TotalPaidUPI
	return stats, nil
}
