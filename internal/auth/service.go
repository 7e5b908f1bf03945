package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/identity"
	"auth-service/internal/session"
	"auth-service/internal/socials"
	"auth-service/internal/token"
)

// DefaultRole is the role every registered user starts with. It must be
// seeded before the service accepts registrations.
const DefaultRole = "guest"

// SessionStore is the durable record of active device sessions.
type SessionStore interface {
	Add(ctx context.Context, userID uuid.UUID, refreshToken, userAgent string) error
	UserByRefreshToken(ctx context.Context, refreshToken string, activeOnly bool) (identity.User, error)
	Rotate(ctx context.Context, oldToken, newToken, userAgent string) error
	Delete(ctx context.Context, refreshToken string) error
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	HistoryByUser(ctx context.Context, userID uuid.UUID) ([]session.HistoryEntry, error)
}

// CredentialStore persists users, their role assignments and provider links.
type CredentialStore interface {
	CreateUser(ctx context.Context, login, password, firstName, lastName, defaultRole string) (identity.User, error)
	GetUserByLogin(ctx context.Context, login string) (identity.User, error)
	UpdatePassword(ctx context.Context, login, newPassword string) error
	RolesByUserID(ctx context.Context, userID uuid.UUID) ([]identity.Role, error)
	PermissionsByLogin(ctx context.Context, login string) ([]string, error)
	ProviderAccountByUser(ctx context.Context, userID uuid.UUID, provider string) (identity.ProviderAccount, error)
	AddProviderAccount(ctx context.Context, userID uuid.UUID, idSocial, provider string) error
}

// Revoker is the fast-path blacklist for access tokens.
type Revoker interface {
	IsRevoked(ctx context.Context, accessToken string) (bool, error)
	Revoke(ctx context.Context, accessToken string, ttl time.Duration) error
}

// Service composes the token codec, session store, credential store and
// revocation cache into the register/login/refresh/logout lifecycle. All
// collaborators are injected once at startup.
type Service struct {
	codec    *token.Codec
	sessions SessionStore
	users    CredentialStore
	revoker  Revoker
	log      *zap.Logger
}

func NewService(codec *token.Codec, sessions SessionStore, users CredentialStore, revoker Revoker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		codec:    codec,
		sessions: sessions,
		users:    users,
		revoker:  revoker,
		log:      log,
	}
}

type Registration struct {
	Login     string
	Password  string
	FirstName string
	LastName  string
}

func (s *Service) Register(ctx context.Context, reg Registration) (identity.User, error) {
	s.log.Info("registering user", zap.String("login", reg.Login))

	_, err := s.users.GetUserByLogin(ctx, reg.Login)
	if err == nil {
		return identity.User{}, ErrDuplicateUser
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, fmt.Errorf("check existing user: %w", err)
	}

	user, err := s.users.CreateUser(ctx, reg.Login, reg.Password, reg.FirstName, reg.LastName, DefaultRole)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRoleNotFound):
			// The default role is seeded by migrations; its absence means
			// the database was never bootstrapped.
			return identity.User{}, fmt.Errorf("%w: %w", ErrNotBootstrapped, err)
		case errors.Is(err, identity.ErrDuplicate):
			return identity.User{}, ErrDuplicateUser
		default:
			return identity.User{}, fmt.Errorf("create user: %w", err)
		}
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, login, password, userAgent string) (token.Pair, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			// Same error as a wrong password, so callers cannot probe
			// which logins exist.
			return token.Pair{}, ErrInvalidCredentials
		}
		return token.Pair{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return token.Pair{}, ErrInvalidCredentials
	}

	return s.loginExistingUser(ctx, user, userAgent)
}

func (s *Service) loginExistingUser(ctx context.Context, user identity.User, userAgent string) (token.Pair, error) {
	roles, err := s.users.RolesByUserID(ctx, user.ID)
	if err != nil {
		return token.Pair{}, fmt.Errorf("load roles: %w", err)
	}

	pair, err := s.codec.CreateTokens(user.Login, roleNames(roles))
	if err != nil {
		return token.Pair{}, fmt.Errorf("mint tokens: %w", err)
	}

	if err := s.sessions.Add(ctx, user.ID, pair.RefreshToken, userAgent); err != nil {
		return token.Pair{}, fmt.Errorf("record session: %w", err)
	}

	s.log.Info("user logged in", zap.String("login", user.Login))
	return pair, nil
}

// AuthorizeProvider handles federated login. An unknown login is
// auto-provisioned with a random unguessable password; a known login missing
// a link for this provider gets one. No password check happens here — the
// upstream provider's assertion is trusted.
func (s *Service) AuthorizeProvider(ctx context.Context, ident socials.Identity, userAgent string) (token.Pair, error) {
	user, err := s.users.GetUserByLogin(ctx, ident.Login)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			return token.Pair{}, fmt.Errorf("load user: %w", err)
		}
		return s.provisionProviderUser(ctx, ident, userAgent)
	}

	_, err = s.users.ProviderAccountByUser(ctx, user.ID, ident.Provider)
	if err != nil {
		if !errors.Is(err, identity.ErrProviderAccountNotFound) {
			return token.Pair{}, fmt.Errorf("load provider account: %w", err)
		}
		if err := s.users.AddProviderAccount(ctx, user.ID, ident.IDSocial, ident.Provider); err != nil {
			return token.Pair{}, fmt.Errorf("link provider account: %w", err)
		}
	}

	return s.loginExistingUser(ctx, user, userAgent)
}

func (s *Service) provisionProviderUser(ctx context.Context, ident socials.Identity, userAgent string) (token.Pair, error) {
	password, err := randomPassword()
	if err != nil {
		return token.Pair{}, fmt.Errorf("generate provider password: %w", err)
	}

	user, err := s.Register(ctx, Registration{Login: ident.Login, Password: password})
	if err != nil {
		return token.Pair{}, err
	}
	s.log.Info("provisioned user from provider",
		zap.String("login", ident.Login), zap.String("provider", ident.Provider))

	if err := s.users.AddProviderAccount(ctx, user.ID, ident.IDSocial, ident.Provider); err != nil {
		return token.Pair{}, fmt.Errorf("link provider account: %w", err)
	}

	return s.loginExistingUser(ctx, user, userAgent)
}

// RefreshTokens redeems a refresh token exactly once: the old session row is
// replaced transactionally, and the new pair carries the user's current role
// set, so role changes take effect here.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken, userAgent string) (token.Pair, error) {
	user, err := s.sessions.UserByRefreshToken(ctx, refreshToken, false)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return token.Pair{}, ErrSessionExpired
		}
		return token.Pair{}, fmt.Errorf("resolve refresh token: %w", err)
	}

	roles, err := s.users.RolesByUserID(ctx, user.ID)
	if err != nil {
		return token.Pair{}, fmt.Errorf("load roles: %w", err)
	}

	pair, err := s.codec.RefreshTokens(refreshToken, roleNames(roles))
	if err != nil {
		return token.Pair{}, fmt.Errorf("refresh tokens: %w", err)
	}

	if err := s.sessions.Rotate(ctx, refreshToken, pair.RefreshToken, userAgent); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// A concurrent redemption won the rotation.
			return token.Pair{}, ErrSessionExpired
		}
		return token.Pair{}, fmt.Errorf("rotate session: %w", err)
	}

	s.log.Info("refreshed tokens", zap.String("login", user.Login))
	return pair, nil
}

// Logout blacklists the access token. The paired refresh token stays
// redeemable until it expires or logout-all runs; only the access half is
// revoked, matching the documented lifecycle.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	revoked, err := s.revoker.IsRevoked(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}

	if err := s.revoker.Revoke(ctx, accessToken, s.codec.RemainingTTL(accessToken)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) LogoutFromAllDevices(ctx context.Context, accessToken string) (int64, error) {
	if err := s.Logout(ctx, accessToken); err != nil {
		return 0, err
	}

	login, err := s.codec.LoginFromAccessToken(accessToken)
	if err != nil {
		return 0, err
	}

	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return 0, ErrSessionExpired
		}
		return 0, fmt.Errorf("load user: %w", err)
	}

	count, err := s.sessions.DeleteAllByUser(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	s.log.Info("logged out from all devices",
		zap.String("login", user.Login), zap.Int64("sessions_deleted", count))
	return count, nil
}

// ValidateAccessToken checks the revocation cache before cryptographic
// validity. A revoked token is an error, not a false return: callers must
// not be able to confuse "terminated session" with a plain bad token.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (bool, error) {
	revoked, err := s.revoker.IsRevoked(ctx, accessToken)
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return false, ErrTokenRevoked
	}
	return s.codec.ValidateAccessToken(accessToken), nil
}

func (s *Service) UserHistory(ctx context.Context, accessToken string) ([]session.HistoryEntry, error) {
	user, err := s.resolveUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	history, err := s.sessions.HistoryByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}

type PasswordUpdate struct {
	Login       string
	OldPassword string
	NewPassword string
}

// PasswordChange re-authenticates with the old password first. A wrong old
// password is rejected exactly like a failed login.
func (s *Service) PasswordChange(ctx context.Context, update PasswordUpdate) error {
	user, err := s.users.GetUserByLogin(ctx, update.Login)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(update.OldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.users.UpdatePassword(ctx, user.Login, update.NewPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.log.Info("password changed", zap.String("login", user.Login))
	return nil
}

type Permissions struct {
	Login       string   `json:"login"`
	Permissions []string `json:"permissions"`
}

func (s *Service) UserPermissions(ctx context.Context, accessToken string) (Permissions, error) {
	user, err := s.resolveUser(ctx, accessToken)
	if err != nil {
		return Permissions{}, err
	}

	permissions, err := s.users.PermissionsByLogin(ctx, user.Login)
	if err != nil {
		return Permissions{}, fmt.Errorf("load permissions: %w", err)
	}
	return Permissions{Login: user.Login, Permissions: permissions}, nil
}

func (s *Service) resolveUser(ctx context.Context, accessToken string) (identity.User, error) {
	valid, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return identity.User{}, err
	}
	if !valid {
		return identity.User{}, token.ErrInvalidToken
	}

	login, err := s.codec.LoginFromAccessToken(accessToken)
	if err != nil {
		return identity.User{}, err
	}

	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, ErrSessionExpired
		}
		return identity.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func roleNames(roles []identity.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

const providerPasswordBytes = 24

func randomPassword() (string, error) {
	buf := make([]byte, providerPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var (
	ErrDuplicateUser      = errors.New("user duplication is not allowed")
	ErrInvalidCredentials = errors.New("the login or password is incorrect")
	ErrSessionExpired     = errors.New("invalid or expired refresh token or no active sessions")
	ErrTokenRevoked       = errors.New("your current session has been terminated, please log in again to continue")
	ErrNotBootstrapped    = errors.New("required role is missing, the database is not initialized correctly")
)
