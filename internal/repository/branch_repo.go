package repository

import (
	"context"

	"echallan-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BranchRepository interface {
	Create(ctx context.Context, branch *model.Branch) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Branch, error)
	GetBySlug(ctx context.Context, slug string) (*model.Branch, error)
	GetByName(ctx context.Context, name string) (*model.Branch, error)
	List(ctx context.Context, page, limit int) ([]model.Branch, int64, error)
	Update(ctx context.Context, branch *model.Branch) error
	Count(ctx context.Context) (int64, error)
}

type branchRepository struct {
	db *gorm.DB
}

func NewBranchRepository(db *gorm.DB) BranchRepository {
	return &branchRepository{db: db}
}

func (r *branchRepository) Create(ctx context.Context, branch *model.Branch) error {
	return GetDB(ctx, r.db).Create(branch).Error
}

func (r *branchRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var branch model.Branch
	if err := GetDB(ctx, r.db).First(&branch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *branchRepository) GetBySlug(ctx context.Context, slug string) (*model.Branch, error) {
	var branch model.Branch
	if err := GetDB(ctx, r.db).First(&branch, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *branchRepository) GetByName(ctx context.Context, name string) (*model.Branch, error) {
	var branch model.Branch
	if err := GetDB(ctx, r.db).First(&branch, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *branchRepository) List(ctx context.Context, page, limit int) ([]model.Branch, int64, error) {
	var branches []model.Branch
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Branch{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("name ASC").Offset(offset).Limit(limit).Find(&branches).Error; err != nil {
		return nil, 0, err
	}

	return branches, total, nil
}

func (r *branchRepository) Update(ctx context.Context, branch *model.Branch) error {
	return GetDB(ctx, r.db).Save(branch).Error
}

func (r *branchRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Branch{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
