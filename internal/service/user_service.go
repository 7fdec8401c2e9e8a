package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"echallan-backend/internal/middleware"
	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/repository"
	"echallan-backend/pkg/apperror"
	"echallan-backend/pkg/pagination"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// --- DTOs ---

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ProvisionUserRequest is the admin-facing creation payload. Role may be given
// directly or through the legacy flag set; the explicit role wins.
type ProvisionUserRequest struct {
	Username string           `json:"username" binding:"required"`
	Email    string           `json:"email" binding:"required"`
	Phone    string           `json:"phone"`
	Password string           `json:"password" binding:"required"`
	Role     string           `json:"role"`
	Flags    *model.RoleFlags `json:"flags"`
	BranchID *string          `json:"branch_id"`
}

type UpdateUserRequest struct {
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
	BranchID *string `json:"branch_id"` // empty string clears the assignment
}

type UserResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Role       string  `json:"role"`
	BranchID   *string `json:"branch_id"`
	BranchName string  `json:"branch_name,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type LoginResponse struct {
	User   UserResponse
	Tokens TokenPair
}

// --- Interface ---

type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, actor policy.Actor) (UserResponse, error)

	ProvisionUser(ctx context.Context, actor policy.Actor, req ProvisionUserRequest) (UserResponse, error)
	ListUsers(ctx context.Context, actor policy.Actor, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actor policy.Actor, userID string, req UpdateUserRequest) (UserResponse, error)
}

type userService struct {
	userRepo   repository.UserRepository
	branchRepo repository.BranchRepository
	txManager  repository.TransactionManager
	jwtSecret  []byte
	logger     *zap.Logger
}

func NewUserService(
	userRepo repository.UserRepository,
	branchRepo repository.BranchRepository,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{
		userRepo:   userRepo,
		branchRepo: branchRepo,
		txManager:  txManager,
		jwtSecret:  middleware.GetJWTSecret(),
		logger:     logger,
	}
}

// --- Auth ---

func (s *userService) Register(ctx context.Context, req RegisterRequest) (UserResponse, error) {
	if fields := validateCredentials(req.Username, req.Email, req.Password); len(fields) > 0 {
		return UserResponse{}, apperror.Validation(fields)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := model.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    req.Phone,
		Password: string(hashed),
		Role:     model.RoleUser,
	}

	if err := s.createUnique(ctx, &user); err != nil {
		return UserResponse{}, err
	}

	return toUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		// Same failure for unknown user and bad password.
		return LoginResponse{}, apperror.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return LoginResponse{}, apperror.Unauthorized("invalid credentials")
	}

	return s.issueSession(ctx, user)
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (LoginResponse, error) {
	if refreshToken == "" {
		return LoginResponse{}, apperror.Unauthorized("refresh token is missing")
	}

	stored, err := s.userRepo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return LoginResponse{}, apperror.Unauthorized("invalid refresh token")
	}
	if time.Now().After(stored.ExpiresAt) {
		_ = s.userRepo.DeleteRefreshToken(ctx, refreshToken)
		return LoginResponse{}, apperror.Unauthorized("refresh token expired")
	}

	user, err := s.userRepo.GetByID(ctx, stored.UserID)
	if err != nil {
		return LoginResponse{}, apperror.Unauthorized("invalid refresh token")
	}

	// Rotate: the presented token is single-use.
	if err := s.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return LoginResponse{}, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.issueSession(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.userRepo.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) Me(ctx context.Context, actor policy.Actor) (UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return UserResponse{}, apperror.NotFound("user not found")
	}
	return toUserResponse(*user), nil
}

// --- Administration ---

func (s *userService) ProvisionUser(ctx context.Context, actor policy.Actor, req ProvisionUserRequest) (UserResponse, error) {
	if !policy.CanManageUsers(actor) {
		return UserResponse{}, apperror.Forbidden("user administration requires ultra admin privilege")
	}

	fields := validateCredentials(req.Username, req.Email, req.Password)

	role := model.RoleUser
	switch {
	case req.Role != "":
		role = model.Role(req.Role)
		if !role.IsValid() {
			fields = append(fields, apperror.FieldError{Field: "role", Reason: "unknown role"})
		}
	case req.Flags != nil:
		role = model.ResolveRole(*req.Flags)
	}

	var branchID *uuid.UUID
	if req.BranchID != nil && *req.BranchID != "" {
		id, parseErr := uuid.Parse(*req.BranchID)
		if parseErr != nil {
			fields = append(fields, apperror.FieldError{Field: "branch_id", Reason: "must be a valid uuid"})
		} else {
			branchID = &id
		}
	}

	if len(fields) > 0 {
		return UserResponse{}, apperror.Validation(fields)
	}

	if branchID != nil {
		if _, err := s.branchRepo.GetByID(ctx, *branchID); err != nil {
			return UserResponse{}, apperror.BadRequest("branch does not exist")
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := model.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    req.Phone,
		Password: string(hashed),
		Role:     role,
		BranchID: branchID,
	}

	// Uniqueness probe and insert run in one transaction so two concurrent
	// provisioning calls cannot both pass the checks.
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.createUnique(txCtx, &user)
	})
	if err != nil {
		return UserResponse{}, err
	}

	reloaded, err := s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return toUserResponse(user), nil
	}
	return toUserResponse(*reloaded), nil
}

func (s *userService) ListUsers(ctx context.Context, actor policy.Actor, page, limit int) ([]UserResponse, int64, error) {
	if !policy.CanManageUsers(actor) {
		return nil, 0, apperror.Forbidden("user administration requires ultra admin privilege")
	}

	params := pagination.FromValues(page, limit)
	users, total, err := s.userRepo.List(ctx, params.Page, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	result := make([]UserResponse, 0, len(users))
	for _, u := range users {
		result = append(result, toUserResponse(u))
	}
	return result, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor policy.Actor, userID string, req UpdateUserRequest) (UserResponse, error) {
	if !policy.CanManageUsers(actor) {
		return UserResponse{}, apperror.Forbidden("user administration requires ultra admin privilege")
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return UserResponse{}, apperror.NotFound("user not found")
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, apperror.NotFound("user not found")
	}

	if req.Role != nil {
		role := model.Role(*req.Role)
		if !role.IsValid() {
			return UserResponse{}, apperror.Validation([]apperror.FieldError{{Field: "role", Reason: "unknown role"}})
		}
		user.Role = role
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.BranchID != nil {
		if *req.BranchID == "" {
			user.BranchID = nil
			user.Branch = nil
		} else {
			branchID, parseErr := uuid.Parse(*req.BranchID)
			if parseErr != nil {
				return UserResponse{}, apperror.Validation([]apperror.FieldError{{Field: "branch_id", Reason: "must be a valid uuid"}})
			}
			if _, branchErr := s.branchRepo.GetByID(ctx, branchID); branchErr != nil {
				return UserResponse{}, apperror.BadRequest("branch does not exist")
			}
			user.BranchID = &branchID
			user.Branch = nil
		}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return UserResponse{}, fmt.Errorf("failed to update user: %w", err)
	}

	reloaded, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, fmt.Errorf("failed to reload user: %w", err)
	}
	return toUserResponse(*reloaded), nil
}

// --- Helpers ---

// createUnique inserts the user, translating duplicate-key failures into a
// conflict naming the clashing field.
func (s *userService) createUnique(ctx context.Context, user *model.User) error {
	if _, err := s.userRepo.GetByUsername(ctx, user.Username); err == nil {
		return apperror.Conflict("username is already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	if _, err := s.userRepo.GetByEmail(ctx, user.Email); err == nil {
		return apperror.Conflict("email is already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *userService) issueSession(ctx context.Context, user *model.User) (LoginResponse, error) {
	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken := uuid.NewString()
	if err := s.userRepo.SaveRefreshToken(ctx, &model.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}); err != nil {
		return LoginResponse{}, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return LoginResponse{
		User: toUserResponse(*user),
		Tokens: TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
	}, nil
}

func (s *userService) signAccessToken(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      time.Now().Add(accessTokenTTL).Unix(),
		"iat":      time.Now().Unix(),
	}
	if user.BranchID != nil {
		claims["bid"] = user.BranchID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func validateCredentials(username, email, password string) []apperror.FieldError {
	var fields []apperror.FieldError

	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 255 {
		fields = append(fields, apperror.FieldError{Field: "username", Reason: "must be 3 to 255 characters"})
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		fields = append(fields, apperror.FieldError{Field: "email", Reason: "must be a valid email address"})
	}
	if len(password) < 8 {
		fields = append(fields, apperror.FieldError{Field: "password", Reason: "must be at least 8 characters"})
	}

	return fields
}

func toUserResponse(user model.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if user.BranchID != nil {
		id := user.BranchID.String()
		resp.BranchID = &id
	}
	if user.Branch != nil {
		resp.BranchName = user.Branch.Name
	}
	return resp
}
