package customers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

// RepositoryPort abstracts customer persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, search string) ([]Customer, error)
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
}

// EntryLister reads ledger entries for balance derivation.
type EntryLister interface {
	ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages customers.
type Service struct {
	repo    RepositoryPort
	entries EntryLister
	audit   AuditPort
	events  events.Publisher
	logger  *slog.Logger
}

// NewService constructs the customer service.
func NewService(repo RepositoryPort, entries EntryLister, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, entries: entries, audit: audit, events: publisher, logger: logger}
}

// Detail is a customer with their entries.
type Detail struct {
	WithBalance
	Entries []ledger.EntryView `json:"entries"`
}

// List returns customers with their outstanding balances.
func (s *Service) List(ctx context.Context, search string) ([]WithBalance, error) {
	list, err := s.repo.List(ctx, search)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, ledger.Filter{Kind: ledger.KindIncome})
	if err != nil {
		return nil, err
	}
	balances := ledger.OutstandingByCustomer(entries)
	out := make([]WithBalance, 0, len(list))
	for _, c := range list {
		bal, ok := balances[c.ID.String()]
		if !ok {
			bal = decimal.Zero
		}
		out = append(out, WithBalance{Customer: c, Balance: bal})
	}
	return out, nil
}

// Get returns a customer, their entries and balance.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	entries, err := s.entries.ListEntries(ctx, ledger.Filter{CustomerID: &id})
	if err != nil {
		return Detail{}, err
	}
	bal, ok := ledger.OutstandingByCustomer(entries)[id.String()]
	if !ok {
		bal = decimal.Zero
	}
	return Detail{WithBalance: WithBalance{Customer: c, Balance: bal}, Entries: ledger.NewEntryViews(entries)}, nil
}

// Create adds a customer. Emails are unique regardless of case.
func (s *Service) Create(ctx context.Context, in Input) (Customer, error) {
	if err := shared.Authorize(ctx, shared.PermCustomersEdit); err != nil {
		return Customer{}, err
	}
	now := time.Now().UTC()
	c := Customer{
		ID: uuid.New(), Name: in.Name, Email: in.Email, Phone: in.Phone,
		Address: in.Address, Company: in.Company, Type: in.Type,
		CreatedAt: now, UpdatedAt: now,
	}.Normalize()
	if err := c.Validate(); err != nil {
		return Customer{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if c.Email != "" {
			if _, err := tx.FindByEmail(ctx, c.Email); err == nil {
				return ErrDuplicateEmail
			}
		}
		return tx.Insert(ctx, c)
	})
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, "customer.created", c.ID, map[string]any{"name": c.Name})
	s.publish(ctx, events.OpCreated, c.ID)
	return c, nil
}

// Update replaces the editable fields of a customer.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Customer, error) {
	if err := shared.Authorize(ctx, shared.PermCustomersEdit); err != nil {
		return Customer{}, err
	}
	var updated Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		updated = Customer{
			ID: id, Name: in.Name, Email: in.Email, Phone: in.Phone, Address: in.Address,
			Company: in.Company, Type: in.Type, CreatedAt: current.CreatedAt, UpdatedAt: time.Now().UTC(),
		}.Normalize()
		if err := updated.Validate(); err != nil {
			return err
		}
		if updated.Email != "" && updated.Email != current.Email {
			if other, err := tx.FindByEmail(ctx, updated.Email); err == nil && other.ID != id {
				return ErrDuplicateEmail
			}
		}
		return tx.Update(ctx, id, map[string]any{
			"name": updated.Name, "email": updated.Email, "phone": updated.Phone,
			"address": updated.Address, "company": updated.Company, "type": string(updated.Type),
		})
	})
	if err != nil {
		return Customer{}, err
	}
	s.publish(ctx, events.OpUpdated, id)
	return updated, nil
}

// Delete removes a customer with no ledger history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermCustomersEdit); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		used, err := tx.HasEntries(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return ErrHasEntries
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "customer.deleted", id, nil)
	s.publish(ctx, events.OpDeleted, id)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: shared.ActorID(ctx), Action: action, Entity: "customer", EntityID: id.String(), Meta: meta,
	}); err != nil {
		s.logger.Warn("audit customer", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, op events.Op, id uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Change{Collection: events.Customers, ID: id.String(), Op: op})
}
