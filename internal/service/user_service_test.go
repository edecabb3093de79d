package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

type mockUserRepo struct {
	byID    map[string]*models.User
	byEmail map[string]*models.User
	created []*models.User
	deleted []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	if m.byID == nil {
		m.byID = map[string]*models.User{}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newUserService() (*UserService, *mockUserRepo, *mockAuditWriter) {
	repo := &mockUserRepo{byID: map[string]*models.User{}, byEmail: map[string]*models.User{}}
	audit := &mockAuditWriter{}
	svc := NewUserService(repo, audit, validator.New(), zap.NewNop())
	return svc, repo, audit
}

func TestCreateUserHashesPasswordAndLowercasesEmail(t *testing.T) {
	svc, repo, audit := newUserService()

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "New.Student@Example.COM",
		FullName: "New Student",
		Role:     models.RoleStudent,
		Active:   true,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "new.student@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	require.Len(t, repo.created, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.logs[0].Action)
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	svc, repo, _ := newUserService()
	repo.byEmail["taken@example.com"] = &models.User{ID: "u1", Email: "taken@example.com"}

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "taken@example.com",
		FullName: "Copy Cat",
		Role:     models.RoleStudent,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newUserService()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "someone@example.com",
		FullName: "Someone",
		Role:     "SUPERUSER",
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUpdateUserChangesRoleAndSchool(t *testing.T) {
	svc, repo, _ := newUserService()
	school := "school-1"
	repo.byID["u1"] = &models.User{ID: "u1", Email: "user@example.com", FullName: "Old Name", Role: models.RoleStudent, Active: true}

	active := false
	user, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "New Name",
		Role:     models.RoleLibrarian,
		Active:   &active,
		SchoolID: &school,
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.FullName)
	assert.Equal(t, models.RoleLibrarian, user.Role)
	assert.False(t, user.Active)
	require.NotNil(t, user.SchoolID)
	assert.Equal(t, "school-1", *user.SchoolID)
}

func TestDeleteUserSoftDeletes(t *testing.T) {
	svc, repo, audit := newUserService()
	repo.byID["u1"] = &models.User{ID: "u1", Email: "user@example.com", Active: true}

	err := svc.Delete(context.Background(), "u1", "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.deleted)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionUserDelete, audit.logs[0].Action)
}

func TestDeleteUnknownUser(t *testing.T) {
	svc, _, _ := newUserService()

	err := svc.Delete(context.Background(), "missing", "admin-1", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
