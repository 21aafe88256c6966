package shared

import (
	"context"
	"errors"

	"github.com/greengold/nexus/internal/platform/db"
	"github.com/greengold/nexus/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

const genericFailure = "Something went wrong while saving. Please try again."

// UserSafeMessage returns text that can be shown to staff. Domain errors carry
// their own message; anything else collapses to a generic notice.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrConflict),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrForbidden),
		errors.Is(err, httpx.ErrDuplicate):
		return err.Error()
	case IsTransient(err):
		return "The server is busy. Please retry in a moment."
	default:
		return genericFailure
	}
}

// IsTransient reports whether err is worth retrying unchanged: serialization
// conflicts, dropped connections and deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, httpx.ErrUnavailable) {
		return true
	}
	return db.IsRetryable(err)
}
