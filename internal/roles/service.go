package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auth-service/internal/access"
	"auth-service/internal/identity"
)

// RoleStore is the slice of the credential store role management needs.
type RoleStore interface {
	GetRoleByName(ctx context.Context, name string) (identity.Role, error)
	ListRoles(ctx context.Context, limit, offset int) ([]identity.Role, error)
	CreateRole(ctx context.Context, name, description string) (identity.Role, error)
	UpdateRole(ctx context.Context, name, description string) error
	DeleteRoleByName(ctx context.Context, name string) error
	GetUserByLogin(ctx context.Context, login string) (identity.User, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error
}

// Service manages roles and role membership. Every mutation requires the
// caller to hold the administrator role; the built-in roles the rest of the
// system depends on cannot be changed through this surface at all.
type Service struct {
	store  RoleStore
	access *access.Service
	log    *zap.Logger
}

func NewService(store RoleStore, accessService *access.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, access: accessService, log: log}
}

// protectedRoles are seeded at bootstrap and referenced by name in business
// logic; mutating them via the API is refused.
var protectedRoles = map[string]struct{}{
	access.AdminRole: {},
	"guest":          {},
}

func (s *Service) Create(ctx context.Context, accessToken, name, description string) (identity.Role, error) {
	if err := s.verifyAdmin(accessToken); err != nil {
		return identity.Role{}, err
	}

	role, err := s.store.CreateRole(ctx, name, description)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return identity.Role{}, fmt.Errorf("%w: role %q already exists", ErrDuplicateRole, name)
		}
		return identity.Role{}, fmt.Errorf("create role: %w", err)
	}

	s.log.Info("role created", zap.String("role", name))
	return role, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]identity.Role, error) {
	roles, err := s.store.ListRoles(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *Service) Get(ctx context.Context, name string) (identity.Role, error) {
	role, err := s.store.GetRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			return identity.Role{}, ErrNotFound
		}
		return identity.Role{}, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

func (s *Service) Update(ctx context.Context, accessToken, name, description string) error {
	if err := s.verifyAdmin(accessToken); err != nil {
		return err
	}
	if _, protected := protectedRoles[name]; protected {
		return ErrProtectedRole
	}

	if err := s.store.UpdateRole(ctx, name, description); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, accessToken, name string) error {
	if err := s.verifyAdmin(accessToken); err != nil {
		return err
	}
	if _, protected := protectedRoles[name]; protected {
		return ErrProtectedRole
	}

	if err := s.store.DeleteRoleByName(ctx, name); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete role: %w", err)
	}

	s.log.Info("role deleted", zap.String("role", name))
	return nil
}

func (s *Service) Assign(ctx context.Context, accessToken, login, roleName string) error {
	user, role, err := s.resolveAssignment(ctx, accessToken, login, roleName)
	if err != nil {
		return err
	}

	if err := s.store.AssignRole(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	s.log.Info("role assigned", zap.String("role", roleName), zap.String("login", login))
	return nil
}

func (s *Service) Revoke(ctx context.Context, accessToken, login, roleName string) error {
	user, role, err := s.resolveAssignment(ctx, accessToken, login, roleName)
	if err != nil {
		return err
	}

	if err := s.store.RevokeRole(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	s.log.Info("role revoked", zap.String("role", roleName), zap.String("login", login))
	return nil
}

func (s *Service) resolveAssignment(ctx context.Context, accessToken, login, roleName string) (identity.User, identity.Role, error) {
	if err := s.verifyAdmin(accessToken); err != nil {
		return identity.User{}, identity.Role{}, err
	}

	role, err := s.store.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			return identity.User{}, identity.Role{}, ErrNotFound
		}
		return identity.User{}, identity.Role{}, fmt.Errorf("resolve role: %w", err)
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, identity.Role{}, ErrNotFound
		}
		return identity.User{}, identity.Role{}, fmt.Errorf("resolve user: %w", err)
	}

	return user, role, nil
}

// verifyAdmin translates the access layer's failure into this package's
// error vocabulary so callers never see access-control internals.
func (s *Service) verifyAdmin(accessToken string) error {
	if err := s.access.VerifyAdminAccess(accessToken); err != nil {
		return fmt.Errorf("role management: %w", err)
	}
	return nil
}

var (
	ErrNotFound      = errors.New("the role name or user name is incorrect")
	ErrDuplicateRole = errors.New("duplicate role")
	ErrProtectedRole = errors.New("modifications for built-in roles are restricted")
)
