package identity

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Login        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Permission struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// ProviderAccount links an external identity-provider account to a local
// user; unique on (provider, social id).
type ProviderAccount struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	IDSocial     string
	ProviderName string
	CreatedAt    time.Time
}
