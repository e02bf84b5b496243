package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	auditLogs []*models.AuditLog
	revoked   []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newUserFixture() (*UserService, *mockUserRepo) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"admin-1": {ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin, Active: true},
		"stu-1":   {ID: "stu-1", Email: "stu@example.com", Role: models.RoleStudent, Active: true},
	}}
	return NewUserService(repo, validator.New(), zap.NewNop()), repo
}

func TestUserServiceList(t *testing.T) {
	svc, _ := newUserFixture()
	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestUserServicePromote(t *testing.T) {
	svc, repo := newUserFixture()
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	user, err := svc.UpdateRole(context.Background(), admin, "stu-1", UpdateRoleRequest{Role: "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, models.RoleAdmin, repo.users["stu-1"].Role)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRoleChange, repo.auditLogs[0].Action)
}

func TestUserServiceSelfDemotionRefused(t *testing.T) {
	svc, _ := newUserFixture()
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.UpdateRole(context.Background(), admin, "admin-1", UpdateRoleRequest{Role: "STUDENT"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceInvalidRole(t *testing.T) {
	svc, _ := newUserFixture()
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.UpdateRole(context.Background(), admin, "stu-1", UpdateRoleRequest{Role: "TEACHER"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivate(t *testing.T) {
	svc, repo := newUserFixture()
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	require.NoError(t, svc.Deactivate(context.Background(), admin, "stu-1"))
	assert.False(t, repo.users["stu-1"].Active)
	assert.Contains(t, repo.revoked, "stu-1")

	err := svc.Deactivate(context.Background(), admin, "admin-1")
	require.Error(t, err)

	err = svc.Deactivate(context.Background(), admin, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
