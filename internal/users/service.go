// Package users lets admins manage staff accounts.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

// ErrLastAdmin protects the only remaining active admin.
var ErrLastAdmin = fmt.Errorf("%w: at least one active admin is required", httpx.ErrConflict)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]auth.User, error)
	UpdateAccess(ctx context.Context, id uuid.UUID, role shared.Role, active bool, at time.Time) error
	CountActiveAdmins(ctx context.Context) (int, error)
}

// Accounts creates and loads accounts.
type Accounts interface {
	CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error)
	Lookup(ctx context.Context, id uuid.UUID) (auth.User, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Access is the patch accepted by UpdateAccess. Nil fields are unchanged.
type Access struct {
	Role   *shared.Role `json:"role"`
	Active *bool        `json:"active"`
}

// Service handles staff administration.
type Service struct {
	repo     RepositoryPort
	accounts Accounts
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, accounts Accounts, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accounts, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]auth.User, error) {
	if err := shared.Authorize(ctx, shared.PermUsersManage); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// CreateUser adds a staff account.
func (s *Service) CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error) {
	if err := shared.Authorize(ctx, shared.PermUsersManage); err != nil {
		return auth.User{}, err
	}
	u, err := s.accounts.CreateUser(ctx, in)
	if err != nil {
		return auth.User{}, err
	}
	s.record(ctx, "user.created", u.ID, map[string]any{"email": u.Email, "role": string(u.Role)})
	return u, nil
}

// UpdateAccess changes role or active flag. The last active admin cannot be
// demoted or disabled.
func (s *Service) UpdateAccess(ctx context.Context, id uuid.UUID, in Access) (auth.User, error) {
	if err := shared.Authorize(ctx, shared.PermUsersManage); err != nil {
		return auth.User{}, err
	}
	u, err := s.accounts.Lookup(ctx, id)
	if err != nil {
		return auth.User{}, err
	}
	role, active := u.Role, u.IsActive
	if in.Role != nil {
		if !shared.ValidRole(*in.Role) {
			return auth.User{}, auth.ErrInvalidRole
		}
		role = *in.Role
	}
	if in.Active != nil {
		active = *in.Active
	}
	losesAdmin := u.Role == shared.RoleAdmin && u.IsActive && (role != shared.RoleAdmin || !active)
	if losesAdmin {
		n, err := s.repo.CountActiveAdmins(ctx)
		if err != nil {
			return auth.User{}, err
		}
		if n <= 1 {
			return auth.User{}, ErrLastAdmin
		}
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateAccess(ctx, id, role, active, now); err != nil {
		return auth.User{}, err
	}
	s.record(ctx, "user.access_changed", id, map[string]any{
		"role": string(role), "active": active, "previousRole": string(u.Role), "previousActive": u.IsActive,
	})
	u.Role, u.IsActive, u.UpdatedAt = role, active, now
	return u, nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: shared.ActorID(ctx), Action: action, Entity: "user", EntityID: id.String(), Meta: meta,
	}); err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}
