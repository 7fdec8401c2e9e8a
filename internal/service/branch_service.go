package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/repository"
	"echallan-backend/pkg/apperror"
	"echallan-backend/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// --- DTOs ---

type CreateBranchRequest struct {
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug"`
	Address  string `json:"address"`
	Metadata string `json:"metadata"`
}

type UpdateBranchRequest struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	Metadata *string `json:"metadata"`
	IsActive *bool   `json:"is_active"`
}

type BranchResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsActive  bool   `json:"is_active"`
	Address   string `json:"address"`
	Metadata  string `json:"metadata"`
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

type BranchService interface {
	Create(ctx context.Context, actor policy.Actor, req CreateBranchRequest) (BranchResponse, error)
	List(ctx context.Context, actor policy.Actor, page, limit int) ([]BranchResponse, int64, error)
	Update(ctx context.Context, actor policy.Actor, branchID string, req UpdateBranchRequest) (BranchResponse, error)
	Deactivate(ctx context.Context, actor policy.Actor, branchID string) (BranchResponse, error)
	Dashboard(ctx context.Context, actor policy.Actor) (model.DashboardStats, error)
}

type branchService struct {
	branchRepo repository.BranchRepository
	userRepo   repository.UserRepository
	logger     *zap.Logger
}

func NewBranchService(
	branchRepo repository.BranchRepository,
	userRepo repository.UserRepository,
	logger *zap.Logger,
) BranchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &branchService{
		branchRepo: branchRepo,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// --- Implementation ---

func (s *branchService) Create(ctx context.Context, actor policy.Actor, req CreateBranchRequest) (BranchResponse, error) {
	if !policy.CanManageBranches(actor) {
		return BranchResponse{}, apperror.Forbidden("branch administration requires ultra admin privilege")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return BranchResponse{}, apperror.Validation([]apperror.FieldError{{Field: "name", Reason: "must be 1 to 255 characters"}})
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = slugify(name)
	} else {
		slug = slugify(slug)
	}
	if slug == "" {
		return BranchResponse{}, apperror.Validation([]apperror.FieldError{{Field: "slug", Reason: "must contain at least one letter or digit"}})
	}

	if _, err := s.branchRepo.GetByName(ctx, name); err == nil {
		return BranchResponse{}, apperror.Conflict("branch name is already in use")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return BranchResponse{}, fmt.Errorf("failed to check branch name: %w", err)
	}
	if _, err := s.branchRepo.GetBySlug(ctx, slug); err == nil {
		return BranchResponse{}, apperror.Conflict("branch slug is already in use")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return BranchResponse{}, fmt.Errorf("failed to check branch slug: %w", err)
	}

	branch := model.Branch{
		Name:     name,
		Slug:     slug,
		IsActive: true,
		Address:  req.Address,
		Metadata: req.Metadata,
	}
	if err := s.branchRepo.Create(ctx, &branch); err != nil {
		return BranchResponse{}, fmt.Errorf("failed to create branch: %w", err)
	}

	return toBranchResponse(branch), nil
}

func (s *branchService) List(ctx context.Context, actor policy.Actor, page, limit int) ([]BranchResponse, int64, error) {
	if !policy.CanManageBranches(actor) {
		return nil, 0, apperror.Forbidden("branch administration requires ultra admin privilege")
	}

	params := pagination.FromValues(page, limit)
	branches, total, err := s.branchRepo.List(ctx, params.Page, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch branches: %w", err)
	}

	result := make([]BranchResponse, 0, len(branches))
	for _, b := range branches {
		result = append(result, toBranchResponse(b))
	}
	return result, total, nil
}

func (s *branchService) Update(ctx context.Context, actor policy.Actor, branchID string, req UpdateBranchRequest) (BranchResponse, error) {
	if !policy.CanManageBranches(actor) {
		return BranchResponse{}, apperror.Forbidden("branch administration requires ultra admin privilege")
	}

	branch, err := s.find(ctx, branchID)
	if err != nil {
		return BranchResponse{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 255 {
			return BranchResponse{}, apperror.Validation([]apperror.FieldError{{Field: "name", Reason: "must be 1 to 255 characters"}})
		}
		if name != branch.Name {
			if _, lookupErr := s.branchRepo.GetByName(ctx, name); lookupErr == nil {
				return BranchResponse{}, apperror.Conflict("branch name is already in use")
			} else if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return BranchResponse{}, fmt.Errorf("failed to check branch name: %w", lookupErr)
			}
		}
		branch.Name = name
	}
	if req.Address != nil {
		branch.Address = *req.Address
	}
	if req.Metadata != nil {
		branch.Metadata = *req.Metadata
	}
	if req.IsActive != nil {
		branch.IsActive = *req.IsActive
	}

	if err := s.branchRepo.Update(ctx, branch); err != nil {
		return BranchResponse{}, fmt.Errorf("failed to update branch: %w", err)
	}

	return toBranchResponse(*branch), nil
}

// Deactivate retires a branch without deleting it. Challans keep their branch
// reference for historical reporting.
func (s *branchService) Deactivate(ctx context.Context, actor policy.Actor, branchID string) (BranchResponse, error) {
	if !policy.CanManageBranches(actor) {
		return BranchResponse{}, apperror.Forbidden("branch administration requires ultra admin privilege")
	}

	branch, err := s.find(ctx, branchID)
	if err != nil {
		return BranchResponse{}, err
	}

	branch.IsActive = false
	if err := s.branchRepo.Update(ctx, branch); err != nil {
		return BranchResponse{}, fmt.Errorf("failed to deactivate branch: %w", err)
	}

	return toBranchResponse(*branch), nil
}

func (s *branchService) Dashboard(ctx context.Context, actor policy.Actor) (model.DashboardStats, error) {
	if !policy.CanManageBranches(actor) {
		return model.DashboardStats{}, apperror.Forbidden("dashboard requires ultra admin privilege")
	}

	branches, err := s.branchRepo.Count(ctx)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("failed to count branches: %w", err)
	}
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("failed to count users: %w", err)
	}

	return model.DashboardStats{TotalBranches: branches, TotalUsers: users}, nil
}

// --- Helpers ---

func (s *branchService) find(ctx context.Context, branchID string) (*model.Branch, error) {
	id, err := uuid.Parse(branchID)
	if err != nil {
		return nil, apperror.NotFound("branch not found")
	}
	branch, err := s.branchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("branch not found")
	}
	return branch, nil
}

// slugify lowercases and collapses runs of non-alphanumerics into hyphens.
func slugify(s string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

func toBranchResponse(branch model.Branch) BranchResponse {
	return BranchResponse{
		ID:        branch.ID.String(),
		Name:      branch.Name,
		Slug:      branch.Slug,
		IsActive:  branch.IsActive,
		Address:   branch.Address,
		Metadata:  branch.Metadata,
		CreatedAt: branch.CreatedAt.Format(time.RFC3339),
	}
}
