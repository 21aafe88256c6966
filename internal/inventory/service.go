package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, f ListFilter) ([]Item, error)
	Get(ctx context.Context, id uuid.UUID) (Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the catalog and manual stock changes.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events events.Publisher
	logger *slog.Logger
}

// NewService constructs the inventory service.
func NewService(repo RepositoryPort, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: publisher, logger: logger}
}

// CreateInput is a new catalog item.
type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Category    string          `json:"category" validate:"max=100"`
	Description string          `json:"description" validate:"max=2000"`
	ImageURL    string          `json:"imageUrl" validate:"omitempty,url,max=1000"`
	Active      *bool           `json:"active,omitempty"`
}

// List returns catalog items.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Item, error) {
	return s.repo.List(ctx, f)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	return s.repo.Get(ctx, id)
}

// Create adds an item to the catalog.
func (s *Service) Create(ctx context.Context, in CreateInput) (Item, error) {
	if err := shared.Authorize(ctx, shared.PermInventoryEdit); err != nil {
		return Item{}, err
	}
	now := time.Now().UTC()
	item := Item{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		ImageURL:    in.ImageURL,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, "inventory.created", item.ID, map[string]any{"name": item.Name, "stock": item.Stock})
	s.publish(ctx, events.OpCreated, item.ID)
	return item, nil
}

// Update edits descriptive fields and price.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (Item, error) {
	if err := shared.Authorize(ctx, shared.PermInventoryEdit); err != nil {
		return Item{}, err
	}
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		updated = p.apply(current)
		if err := updated.Validate(); err != nil {
			return err
		}
		return tx.Update(ctx, id, p.columns(updated))
	})
	if err != nil {
		return Item{}, err
	}
	s.publish(ctx, events.OpUpdated, id)
	return updated, nil
}

// Delete removes an item from the catalog.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermInventoryEdit); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "inventory.deleted", id, nil)
	s.publish(ctx, events.OpDeleted, id)
	return nil
}

// Adjust is the manual stock stepper. The count never goes below zero.
func (s *Service) Adjust(ctx context.Context, id uuid.UUID, delta int, note string) (Item, error) {
	if err := shared.Authorize(ctx, shared.PermInventoryEdit); err != nil {
		return Item{}, err
	}
	if delta == 0 {
		return Item{}, fmt.Errorf("%w: adjustment cannot be zero", ErrInvalidQuantity)
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.AdjustStock(ctx, id, delta)
		if err != nil {
			return err
		}
		item, err = tx.Get(ctx, id)
		if err != nil {
			return err
		}
		item.Stock = stock
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, "inventory.adjusted", id, map[string]any{"delta": delta, "stock": item.Stock, "note": note})
	s.publish(ctx, events.OpUpdated, id)
	return item, nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "plant",
		EntityID: id.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, op events.Op, id uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Change{Collection: events.Plants, ID: id.String(), Op: op})
}
