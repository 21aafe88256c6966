// Package reviews collects storefront testimonials. Submissions stay hidden
// until staff approve them.
package reviews

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
)

// Review is a customer testimonial.
type Review struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Rating     int        `json:"rating"`
	Text       string     `json:"text"`
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// PublicReview is what the storefront shows.
type PublicReview struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips moderation fields.
func (r Review) Public() PublicReview {
	return PublicReview{ID: r.ID, Name: r.Name, Rating: r.Rating, Text: r.Text, CreatedAt: r.CreatedAt}
}

// Submission is the public review form.
type Submission struct {
	Name   string `json:"name" validate:"required,max=120"`
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"required,max=2000"`
}

// Filter narrows listings. A nil Approved returns everything.
type Filter struct {
	Approved *bool
}

// Summary backs the moderation badge.
type Summary struct {
	Pending       int     `json:"pending"`
	Published     int     `json:"published"`
	AverageRating float64 `json:"averageRating"`
}

var (
	// ErrReviewNotFound is returned for unknown ids.
	ErrReviewNotFound = fmt.Errorf("review %w", httpx.ErrNotFound)
	// ErrInvalidReview wraps form problems.
	ErrInvalidReview = fmt.Errorf("%w: invalid review", httpx.ErrValidation)
)
