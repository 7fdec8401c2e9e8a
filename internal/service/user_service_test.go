package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/repository"
	"echallan-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type memoryUserRepo struct {
	users  map[uuid.UUID]*model.User
	tokens map[string]*model.RefreshToken
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:  map[uuid.UUID]*model.User{},
		tokens: map[string]*model.RefreshToken{},
	}
}

func (m *memoryUserRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *memoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUserRepo) List(_ context.Context, _, _ int) ([]model.User, int64, error) {
	var users []model.User
	for _, user := range m.users {
		users = append(users, *user)
	}
	return users, int64(len(users)), nil
}

func (m *memoryUserRepo) Update(_ context.Context, user *model.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memoryUserRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *memoryUserRepo) SaveRefreshToken(_ context.Context, token *model.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *memoryUserRepo) GetRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	rt, ok := m.tokens[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return rt, nil
}

func (m *memoryUserRepo) DeleteRefreshToken(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func (m *memoryUserRepo) DeleteRefreshTokensForUser(_ context.Context, userID uuid.UUID) error {
	for key, rt := range m.tokens {
		if rt.UserID == userID {
			delete(m.tokens, key)
		}
	}
	return nil
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)

type memoryBranchRepo struct {
	repository.BranchRepository
	branches map[uuid.UUID]*model.Branch
}

func (m *memoryBranchRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Branch, error) {
	branch, ok := m.branches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return branch, nil
}

func setupUserService(t *testing.T) (*memoryUserRepo, *memoryBranchRepo, UserService) {
	t.Helper()
	userRepo := newMemoryUserRepo()
	branchRepo := &memoryBranchRepo{branches: map[uuid.UUID]*model.Branch{}}
	svc := NewUserService(userRepo, branchRepo, fakeTxManager{}, nil)
	return userRepo, branchRepo, svc
}

func seedUser(t *testing.T, repo *memoryUserRepo, username, password string, role model.Role) *model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		ID:       uuid.New(),
		Username: username,
		Email:    username + "@example.com",
		Password: string(hashed),
		Role:     role,
	}
	repo.users[user.ID] = user
	return user
}

func TestRegisterAssignsBaseRole(t *testing.T) {
	_, _, svc := setupUserService(t)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Username: "operator1",
		Email:    "Operator1@Example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, string(model.RoleUser), user.Role)
	assert.Equal(t, "operator1@example.com", user.Email)
	assert.Nil(t, user.BranchID)
}

func TestRegisterValidation(t *testing.T) {
	_, _, svc := setupUserService(t)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "ab",
		Email:    "not-an-email",
		Password: "short",
	})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Len(t, appErr.Fields, 3)
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	seedUser(t, userRepo, "operator1", "whatever-pass", model.RoleUser)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "operator1",
		Email:    "fresh@example.com",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.StatusOf(err))
}

func TestLoginRejectsBadCredentialsIdentically(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	seedUser(t, userRepo, "operator1", "right-password", model.RoleUser)

	_, unknownErr := svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "whatever"})
	_, wrongErr := svc.Login(context.Background(), LoginRequest{Username: "operator1", Password: "wrong-password"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.Equal(t, http.StatusUnauthorized, apperror.StatusOf(unknownErr))
}

func TestLoginIssuesTokens(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	seedUser(t, userRepo, "operator1", "right-password", model.RoleUser)

	session, err := svc.Login(context.Background(), LoginRequest{Username: "operator1", Password: "right-password"})
	require.NoError(t, err)

	assert.NotEmpty(t, session.Tokens.AccessToken)
	assert.NotEmpty(t, session.Tokens.RefreshToken)
	assert.Contains(t, userRepo.tokens, session.Tokens.RefreshToken)
}

func TestRefreshRotatesToken(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	seedUser(t, userRepo, "operator1", "right-password", model.RoleUser)

	session, err := svc.Login(context.Background(), LoginRequest{Username: "operator1", Password: "right-password"})
	require.NoError(t, err)

	renewed, err := svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.NotEqual(t, session.Tokens.RefreshToken, renewed.Tokens.RefreshToken)
	assert.NotContains(t, userRepo.tokens, session.Tokens.RefreshToken)

	// The rotated-out token is dead.
	_, err = svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperror.StatusOf(err))
}

func TestRefreshExpiredToken(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	user := seedUser(t, userRepo, "operator1", "right-password", model.RoleUser)

	userRepo.tokens["stale"] = &model.RefreshToken{
		UserID:    user.ID,
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	_, err := svc.Refresh(context.Background(), "stale")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperror.StatusOf(err))
	assert.NotContains(t, userRepo.tokens, "stale")
}

func TestProvisionUserRequiresUltraAdmin(t *testing.T) {
	_, _, svc := setupUserService(t)

	for _, role := range []model.Role{model.RoleSuperAdmin, model.RoleCoOfficer, model.RoleAdminUser, model.RoleUser} {
		actor := policy.Actor{ID: uuid.New(), Role: role}
		_, err := svc.ProvisionUser(context.Background(), actor, ProvisionUserRequest{
			Username: "newuser",
			Email:    "new@example.com",
			Password: "s3cret-pass",
		})
		require.Error(t, err, string(role))
		assert.Equal(t, http.StatusForbidden, apperror.StatusOf(err))
	}
}

func TestProvisionUserResolvesLegacyFlags(t *testing.T) {
	_, branchRepo, svc := setupUserService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}

	branchID := uuid.New()
	branchRepo.branches[branchID] = &model.Branch{ID: branchID, Name: "North Yard"}
	branchStr := branchID.String()

	user, err := svc.ProvisionUser(context.Background(), ultra, ProvisionUserRequest{
		Username: "officer1",
		Email:    "officer1@example.com",
		Password: "s3cret-pass",
		Flags:    &model.RoleFlags{IsCoOfficer: true, IsAdmin: true},
		BranchID: &branchStr,
	})
	require.NoError(t, err)

	assert.Equal(t, string(model.RoleCoOfficer), user.Role)
	require.NotNil(t, user.BranchID)
	assert.Equal(t, branchStr, *user.BranchID)
}

func TestProvisionUserExplicitRoleWinsOverFlags(t *testing.T) {
	_, _, svc := setupUserService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}

	user, err := svc.ProvisionUser(context.Background(), ultra, ProvisionUserRequest{
		Username: "admin2",
		Email:    "admin2@example.com",
		Password: "s3cret-pass",
		Role:     string(model.RoleSuperAdmin),
		Flags:    &model.RoleFlags{IsAdmin: true},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.RoleSuperAdmin), user.Role)
}

func TestProvisionUserUnknownBranch(t *testing.T) {
	_, _, svc := setupUserService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}

	branchStr := uuid.NewString()
	_, err := svc.ProvisionUser(context.Background(), ultra, ProvisionUserRequest{
		Username: "officer1",
		Email:    "officer1@example.com",
		Password: "s3cret-pass",
		BranchID: &branchStr,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.StatusOf(err))
}

func TestUpdateUserReassignsAndClearsBranch(t *testing.T) {
	userRepo, branchRepo, svc := setupUserService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}

	branchID := uuid.New()
	branchRepo.branches[branchID] = &model.Branch{ID: branchID, Name: "South Yard"}
	target := seedUser(t, userRepo, "operator1", "pass-word-1", model.RoleUser)

	branchStr := branchID.String()
	updated, err := svc.UpdateUser(context.Background(), ultra, target.ID.String(), UpdateUserRequest{BranchID: &branchStr})
	require.NoError(t, err)
	require.NotNil(t, updated.BranchID)
	assert.Equal(t, branchStr, *updated.BranchID)

	empty := ""
	updated, err = svc.UpdateUser(context.Background(), ultra, target.ID.String(), UpdateUserRequest{BranchID: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.BranchID)
}

func TestUpdateUserRejectsUnknownRole(t *testing.T) {
	userRepo, _, svc := setupUserService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}
	target := seedUser(t, userRepo, "operator1", "pass-word-1", model.RoleUser)

	bogus := "manager"
	_, err := svc.UpdateUser(context.Background(), ultra, target.ID.String(), UpdateUserRequest{Role: &bogus})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "role", appErr.Fields[0].Field)
}
