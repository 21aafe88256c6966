// Package bookings takes service requests from the storefront and tracks them
// until staff mark them completed or cancelled.
package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
)

// Status is where a request sits in the staff queue.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Final reports whether no further transition is allowed.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Services offered on the booking form.
var Services = []string{
	"General Consultation",
	"Landscape Design",
	"Garden Maintenance",
	"Plant Doctor Visit",
	"Corporate Installation",
}

// DefaultService is used when the form leaves the service blank.
const DefaultService = "General Consultation"

// Booking is a customer's request for an on-site service.
type Booking struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Service       string    `json:"service"`
	PreferredDate time.Time `json:"preferredDate"`
	Notes         string    `json:"notes"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Request is the public booking form.
type Request struct {
	Name          string `json:"name" validate:"required,max=200"`
	Phone         string `json:"phone" validate:"required,max=50"`
	Email         string `json:"email" validate:"omitempty,email,max=254"`
	Service       string `json:"service" validate:"max=100"`
	PreferredDate string `json:"preferredDate" validate:"required,datetime=2006-01-02"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// StatusInput moves a booking along.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=Pending Completed Cancelled"`
}

// Filter narrows the staff list.
type Filter struct {
	Status Status
}

func knownService(name string) (string, bool) {
	for _, s := range Services {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

var (
	// ErrBookingNotFound is returned for unknown ids.
	ErrBookingNotFound = fmt.Errorf("booking %w", httpx.ErrNotFound)
	// ErrInvalidBooking wraps form problems.
	ErrInvalidBooking = fmt.Errorf("%w: invalid booking", httpx.ErrValidation)
	// ErrBookingClosed rejects changes to completed or cancelled requests.
	ErrBookingClosed = fmt.Errorf("%w: booking is already closed", httpx.ErrConflict)
)
