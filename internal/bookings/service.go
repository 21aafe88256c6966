package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

// RepositoryPort abstracts booking persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Insert(ctx context.Context, b Booking) error
	List(ctx context.Context, f Filter) ([]Booking, error)
	Get(ctx context.Context, id uuid.UUID) (Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages booking requests.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the booking service.
func NewService(repo RepositoryPort, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: publisher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Submit records a request from the storefront. It always starts Pending.
func (s *Service) Submit(ctx context.Context, in Request) (Booking, error) {
	service := strings.TrimSpace(in.Service)
	if service == "" {
		service = DefaultService
	}
	canonical, ok := knownService(service)
	if !ok {
		return Booking{}, fmt.Errorf("%w: unknown service %q", ErrInvalidBooking, service)
	}
	day, err := time.Parse(time.DateOnly, strings.TrimSpace(in.PreferredDate))
	if err != nil {
		return Booking{}, fmt.Errorf("%w: preferred date must be YYYY-MM-DD", ErrInvalidBooking)
	}
	now := s.now()
	b := Booking{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(in.Name),
		Phone:         strings.TrimSpace(in.Phone),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		Service:       canonical,
		PreferredDate: day,
		Notes:         strings.TrimSpace(in.Notes),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if b.Name == "" || b.Phone == "" {
		return Booking{}, fmt.Errorf("%w: name and phone are required", ErrInvalidBooking)
	}
	if err := s.repo.Insert(ctx, b); err != nil {
		return Booking{}, err
	}
	s.record(ctx, "booking.requested", b.ID, map[string]any{"service": b.Service})
	s.publish(ctx, events.OpCreated, b.ID)
	return b, nil
}

// List returns bookings, optionally by status.
func (s *Service) List(ctx context.Context, f Filter) ([]Booking, error) {
	return s.repo.List(ctx, f)
}

// Get returns one booking.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	return s.repo.Get(ctx, id)
}

// SetStatus moves a pending booking to completed or cancelled. Closed
// bookings only accept their current status again.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (Booking, error) {
	if err := shared.Authorize(ctx, shared.PermBookingsManage); err != nil {
		return Booking{}, err
	}
	switch status {
	case StatusPending, StatusCompleted, StatusCancelled:
	default:
		return Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidBooking, status)
	}
	var out Booking
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = current
		if current.Status == status {
			return nil
		}
		if current.Status.Final() {
			return ErrBookingClosed
		}
		if err := tx.SetStatus(ctx, id, status); err != nil {
			return err
		}
		out.Status = status
		out.UpdatedAt = s.now()
		changed = true
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	if changed {
		s.record(ctx, "booking.status_changed", id, map[string]any{"status": string(status)})
		s.publish(ctx, events.OpUpdated, id)
	}
	return out, nil
}

// Delete removes a booking.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermBookingsManage); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "booking.deleted", id, nil)
	s.publish(ctx, events.OpDeleted, id)
	return nil
}

// CountPending feeds the dashboard.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.repo.CountPending(ctx)
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: shared.ActorID(ctx), Action: action, Entity: "booking", EntityID: id.String(), Meta: meta,
	}); err != nil {
		s.logger.Warn("audit booking", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, op events.Op, id uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Change{Collection: events.Bookings, ID: id.String(), Op: op})
}
