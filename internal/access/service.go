package access

import (
	"errors"
	"fmt"
	"slices"

	"auth-service/internal/token"
)

const AdminRole = "admin"

// Service gates privileged operations behind administrator identity. It is
// a pure authorization check over the token's embedded role claim, with no
// storage I/O and no side effects.
type Service struct {
	codec *token.Codec
}

func NewService(codec *token.Codec) *Service {
	return &Service{codec: codec}
}

func (s *Service) VerifyAdminAccess(accessToken string) error {
	if !s.codec.ValidateAccessToken(accessToken) {
		return fmt.Errorf("admin check: %w", token.ErrInvalidToken)
	}

	roles, err := s.codec.RolesFromToken(accessToken)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	if !slices.Contains(roles, AdminRole) {
		return ErrAccessDenied
	}
	return nil
}

var ErrAccessDenied = errors.New("access denied: insufficient permissions for this action")
