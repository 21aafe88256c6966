package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

// User represents a staff account.
type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"role"`
	IsActive     bool        `json:"isActive"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// NewUser describes an account to create.
type NewUser struct {
	Email    string      `validate:"required,email"`
	Name     string      `validate:"max=120"`
	Password string      `validate:"required,min=8,max=72"`
	Role     shared.Role `validate:"required"`
}

var (
	// ErrUserNotFound is returned for unknown ids or emails.
	ErrUserNotFound = fmt.Errorf("user %w", httpx.ErrNotFound)
	// ErrEmailTaken rejects a second account with the same email.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", httpx.ErrConflict)
	// ErrInvalidRole rejects unknown roles.
	ErrInvalidRole = fmt.Errorf("%w: unknown role", httpx.ErrValidation)
)

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
