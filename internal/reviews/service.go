package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

// RepositoryPort abstracts review persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, r Review) error
	List(ctx context.Context, f Filter) ([]Review, error)
	Approve(ctx context.Context, id uuid.UUID, at time.Time) (Review, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Summarize(ctx context.Context) (Summary, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service moderates reviews.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the review service.
func NewService(repo RepositoryPort, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: publisher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Submit stores an unapproved review.
func (s *Service) Submit(ctx context.Context, in Submission) (Review, error) {
	r := Review{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Rating:    in.Rating,
		Text:      strings.TrimSpace(in.Text),
		CreatedAt: s.now(),
	}
	if r.Name == "" || r.Text == "" {
		return Review{}, fmt.Errorf("%w: name and text are required", ErrInvalidReview)
	}
	if r.Rating < 1 || r.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return Review{}, err
	}
	s.publish(ctx, events.OpCreated, r.ID)
	return r, nil
}

// Published lists approved reviews for the storefront.
func (s *Service) Published(ctx context.Context) ([]PublicReview, error) {
	approved := true
	list, err := s.repo.List(ctx, Filter{Approved: &approved})
	if err != nil {
		return nil, err
	}
	out := make([]PublicReview, 0, len(list))
	for _, r := range list {
		out = append(out, r.Public())
	}
	return out, nil
}

// List returns reviews for moderation.
func (s *Service) List(ctx context.Context, f Filter) ([]Review, error) {
	return s.repo.List(ctx, f)
}

// Approve publishes a review. Approving twice is harmless.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (Review, error) {
	if err := shared.Authorize(ctx, shared.PermReviewsModerate); err != nil {
		return Review{}, err
	}
	r, err := s.repo.Approve(ctx, id, s.now())
	if err != nil {
		return Review{}, err
	}
	s.record(ctx, "review.approved", id, map[string]any{"rating": r.Rating})
	s.publish(ctx, events.OpUpdated, id)
	return r, nil
}

// Delete removes a review, approved or not.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermReviewsModerate); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "review.deleted", id, nil)
	s.publish(ctx, events.OpDeleted, id)
	return nil
}

// Summary returns moderation counts with the average rounded to one decimal.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	sum, err := s.repo.Summarize(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum.AverageRating = math.Round(sum.AverageRating*10) / 10
	return sum, nil
}

// CountPending feeds the dashboard.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	sum, err := s.repo.Summarize(ctx)
	return sum.Pending, err
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: shared.ActorID(ctx), Action: action, Entity: "review", EntityID: id.String(), Meta: meta,
	}); err != nil {
		s.logger.Warn("audit review", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, op events.Op, id uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Change{Collection: events.Reviews, ID: id.String(), Op: op})
}
