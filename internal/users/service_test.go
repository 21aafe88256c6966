package users

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// memStore backs both the auth repository and the users repository.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]auth.User
	audit []shared.AuditLog
}

func newMemStore() *memStore { return &memStore{users: map[uuid.UUID]auth.User{}} }

func (m *memStore) FindByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) Create(_ context.Context, u auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) ListUsers(context.Context) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) UpdateAccess(_ context.Context, id uuid.UUID, role shared.Role, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Role, u.IsActive, u.UpdatedAt = role, active, at
	m.users[id] = u
	return nil
}

func (m *memStore) CountActiveAdmins(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Role == shared.RoleAdmin && u.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, log)
	return nil
}

func adminCtx() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleAdmin})
}

func newService(store *memStore) *Service {
	return NewService(store, auth.NewService(store), store, slog.Default())
}

func TestCreateAndList(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	u, err := svc.CreateUser(adminCtx(), auth.NewUser{Email: "ama@greengold.local", Password: "long-enough", Role: shared.RoleHR})
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	list, err := svc.ListUsers(adminCtx())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, store.audit, 1)
	assert.Equal(t, "user.created", store.audit[0].Action)

	staff := shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleStaff})
	_, err = svc.ListUsers(staff)
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestUpdateAccessKeepsOneAdmin(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	ctx := adminCtx()
	admin, err := svc.CreateUser(ctx, auth.NewUser{Email: "owner@greengold.local", Password: "long-enough", Role: shared.RoleAdmin})
	require.NoError(t, err)

	off := false
	_, err = svc.UpdateAccess(ctx, admin.ID, Access{Active: &off})
	assert.ErrorIs(t, err, ErrLastAdmin)

	second, err := svc.CreateUser(ctx, auth.NewUser{Email: "deputy@greengold.local", Password: "long-enough", Role: shared.RoleAdmin})
	require.NoError(t, err)
	staff := shared.RoleStaff
	updated, err := svc.UpdateAccess(ctx, second.ID, Access{Role: &staff})
	require.NoError(t, err)
	assert.Equal(t, shared.RoleStaff, updated.Role)
	assert.True(t, updated.IsActive)

	bogus := shared.Role("owner")
	_, err = svc.UpdateAccess(ctx, second.ID, Access{Role: &bogus})
	assert.ErrorIs(t, err, auth.ErrInvalidRole)

	_, err = svc.UpdateAccess(ctx, uuid.New(), Access{Active: &off})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	store := newMemStore()
	h := NewHandler(nil, newService(store), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(adminCtx()))
		})
	})
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"kwame@greengold.local","password":"long-enough","role":"staff"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "password")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"kwame@greengold.local","password":"long-enough","role":"staff"}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/not-a-uuid", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "kwame@greengold.local")
}
