package roles

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-service/internal/access"
	"auth-service/internal/identity"
	"auth-service/internal/token"
)

type fakeRoleStore struct {
	roles       map[string]identity.Role
	users       map[string]identity.User
	assignments map[uuid.UUID][]uuid.UUID
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles:       make(map[string]identity.Role),
		users:       make(map[string]identity.User),
		assignments: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeRoleStore) addRole(name string) identity.Role {
	role := identity.Role{ID: uuid.New(), Name: name}
	f.roles[name] = role
	return role
}

func (f *fakeRoleStore) addUser(login string) identity.User {
	user := identity.User{ID: uuid.New(), Login: login, IsActive: true}
	f.users[login] = user
	return user
}

func (f *fakeRoleStore) GetRoleByName(_ context.Context, name string) (identity.Role, error) {
	role, ok := f.roles[name]
	if !ok {
		return identity.Role{}, identity.ErrRoleNotFound
	}
	return role, nil
}

func (f *fakeRoleStore) ListRoles(_ context.Context, limit, offset int) ([]identity.Role, error) {
	roles := make([]identity.Role, 0, len(f.roles))
	for _, role := range f.roles {
		roles = append(roles, role)
	}
	if offset >= len(roles) {
		return nil, nil
	}
	roles = roles[offset:]
	if limit > 0 && limit < len(roles) {
		roles = roles[:limit]
	}
	return roles, nil
}

func (f *fakeRoleStore) CreateRole(_ context.Context, name, description string) (identity.Role, error) {
	if _, ok := f.roles[name]; ok {
		return identity.Role{}, identity.ErrDuplicate
	}
	role := identity.Role{ID: uuid.New(), Name: name, Description: description}
	f.roles[name] = role
	return role, nil
}

func (f *fakeRoleStore) UpdateRole(_ context.Context, name, description string) error {
	role, ok := f.roles[name]
	if !ok {
		return identity.ErrRoleNotFound
	}
	role.Description = description
	f.roles[name] = role
	return nil
}

func (f *fakeRoleStore) DeleteRoleByName(_ context.Context, name string) error {
	if _, ok := f.roles[name]; !ok {
		return identity.ErrRoleNotFound
	}
	delete(f.roles, name)
	return nil
}

func (f *fakeRoleStore) GetUserByLogin(_ context.Context, login string) (identity.User, error) {
	user, ok := f.users[login]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRoleStore) AssignRole(_ context.Context, userID, roleID uuid.UUID) error {
	for _, assigned := range f.assignments[userID] {
		if assigned == roleID {
			return nil
		}
	}
	f.assignments[userID] = append(f.assignments[userID], roleID)
	return nil
}

func (f *fakeRoleStore) RevokeRole(_ context.Context, userID, roleID uuid.UUID) error {
	assigned := f.assignments[userID]
	for i, id := range assigned {
		if id == roleID {
			f.assignments[userID] = append(assigned[:i], assigned[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRoleStore, *token.Codec) {
	t.Helper()

	codec := token.NewCodec("roles-test-secret", 15*time.Minute, 24*time.Hour)
	store := newFakeRoleStore()
	store.addRole(access.AdminRole)
	store.addRole("guest")
	return NewService(store, access.NewService(codec), nil), store, codec
}

func adminToken(t *testing.T, codec *token.Codec) string {
	t.Helper()
	tok, err := codec.CreateAccessToken("admin@example.com", []string{access.AdminRole})
	require.NoError(t, err)
	return tok
}

func guestToken(t *testing.T, codec *token.Codec) string {
	t.Helper()
	tok, err := codec.CreateAccessToken("alice@example.com", []string{"guest"})
	require.NoError(t, err)
	return tok
}

func TestCreateRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)

	_, err := service.Create(ctx, guestToken(t, codec), "editor", "can edit content")
	assert.ErrorIs(t, err, access.ErrAccessDenied)
	assert.NotContains(t, store.roles, "editor")

	role, err := service.Create(ctx, adminToken(t, codec), "editor", "can edit content")
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	service, _, codec := newTestService(t)

	tok := adminToken(t, codec)
	_, err := service.Create(ctx, tok, "editor", "")
	require.NoError(t, err)

	_, err = service.Create(ctx, tok, "editor", "")
	assert.ErrorIs(t, err, ErrDuplicateRole)
}

func TestCreateRejectsInvalidToken(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	_, err := service.Create(ctx, "garbage", "editor", "")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestGetAndListAreUnauthenticated(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	role, err := service.Get(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, "guest", role.Name)

	_, err = service.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	roles, err := service.List(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestProtectedRolesAreImmutable(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)
	tok := adminToken(t, codec)

	assert.ErrorIs(t, service.Update(ctx, tok, access.AdminRole, "renamed"), ErrProtectedRole)
	assert.ErrorIs(t, service.Delete(ctx, tok, "guest"), ErrProtectedRole)
	assert.Contains(t, store.roles, "guest")
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)
	tok := adminToken(t, codec)

	_, err := service.Create(ctx, tok, "editor", "old")
	require.NoError(t, err)

	require.NoError(t, service.Update(ctx, tok, "editor", "new"))
	assert.Equal(t, "new", store.roles["editor"].Description)

	assert.ErrorIs(t, service.Update(ctx, tok, "missing", "x"), ErrNotFound)

	require.NoError(t, service.Delete(ctx, tok, "editor"))
	assert.ErrorIs(t, service.Delete(ctx, tok, "editor"), ErrNotFound)
}

func TestAssignAndRevoke(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)
	tok := adminToken(t, codec)

	user := store.addUser("alice@example.com")
	editor := store.addRole("editor")

	require.NoError(t, service.Assign(ctx, tok, "alice@example.com", "editor"))
	assert.Contains(t, store.assignments[user.ID], editor.ID)

	// Assigning twice is a no-op, not an error.
	require.NoError(t, service.Assign(ctx, tok, "alice@example.com", "editor"))
	assert.Len(t, store.assignments[user.ID], 1)

	require.NoError(t, service.Revoke(ctx, tok, "alice@example.com", "editor"))
	assert.Empty(t, store.assignments[user.ID])
}

func TestAssignUnknownRoleOrUser(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)
	tok := adminToken(t, codec)

	store.addUser("alice@example.com")

	assert.ErrorIs(t, service.Assign(ctx, tok, "alice@example.com", "missing"), ErrNotFound)
	assert.ErrorIs(t, service.Assign(ctx, tok, "nobody@example.com", "guest"), ErrNotFound)
}

func TestAssignRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	service, store, codec := newTestService(t)

	store.addUser("alice@example.com")

	err := service.Assign(ctx, guestToken(t, codec), "alice@example.com", "guest")
	assert.ErrorIs(t, err, access.ErrAccessDenied)
}
