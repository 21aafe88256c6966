package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/greengold/nexus/internal/platform/db"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

const rowID = "default"

// Repository persists the settings document.
type Repository interface {
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, s Settings) error
}

// PGRepository stores settings as a JSONB row.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// Load returns the saved settings and whether a row existed.
func (r *PGRepository) Load(ctx context.Context) (Settings, bool, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM site_settings WHERE id = $1`, rowID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, false, nil
		}
		return Settings{}, false, err
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, false, fmt.Errorf("settings: decode: %w", err)
	}
	return s, true, nil
}

// Save upserts the settings row.
func (r *PGRepository) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO site_settings (id, payload, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, rowID, raw)
	return err
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Store holds the current settings snapshot.
type Store struct {
	repo    Repository
	audit   AuditPort
	events  events.Publisher
	logger  *slog.Logger
	current atomic.Pointer[Settings]
}

// NewStore constructs a Store primed with defaults.
func NewStore(repo Repository, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{repo: repo, audit: audit, events: publisher, logger: logger}
	def := Defaults()
	s.current.Store(&def)
	return s
}

// Static returns a Store fixed to s, for callers that never persist.
func Static(s Settings) *Store {
	st := &Store{logger: slog.Default()}
	n := s.Normalize()
	st.current.Store(&n)
	return st
}

// Load reads the persisted settings into memory. A missing row keeps the defaults.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	saved, ok, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	if !ok {
		s.logger.Info("settings not saved yet, using defaults")
		return nil
	}
	n := saved.Normalize()
	if err := n.Validate(); err != nil {
		s.logger.Warn("saved settings invalid, using defaults", slog.Any("error", err))
		return nil
	}
	s.current.Store(&n)
	return nil
}

// Current returns the active settings snapshot.
func (s *Store) Current() Settings {
	return *s.current.Load()
}

// Save validates, persists, and swaps in the new settings.
func (s *Store) Save(ctx context.Context, next Settings) (Settings, error) {
	if err := shared.Authorize(ctx, shared.PermSettingsEdit); err != nil {
		return Settings{}, err
	}
	n := next.Normalize()
	if err := n.Validate(); err != nil {
		return Settings{}, err
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, n); err != nil {
			return Settings{}, fmt.Errorf("settings: save: %w", err)
		}
	}
	s.current.Store(&n)

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorID(ctx),
			Action:   "settings.saved",
			Entity:   "site_settings",
			EntityID: rowID,
			Meta:     map[string]any{"tax_rate": n.TaxRate.String(), "discount_rate": n.DiscountRate.String(), "tax_basis": n.TaxBasis},
		}); err != nil {
			s.logger.Warn("audit settings save", slog.Any("error", err))
		}
	}
	if s.events != nil {
		s.events.Publish(ctx, events.Change{Collection: events.Settings, ID: rowID, Op: events.OpUpdated})
	}
	return n, nil
}
