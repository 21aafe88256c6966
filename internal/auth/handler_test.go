package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/shared"
	_ "github.com/greengold/nexus/internal/testing/guard"
)

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]auth.User
}

func newMemRepo() *memRepo { return &memRepo{users: map[uuid.UUID]auth.User{}} }

func (m *memRepo) FindByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *memRepo) Create(_ context.Context, u auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return auth.ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

type fixture struct {
	router  http.Handler
	service *auth.Service
	repo    *memRepo
	cookie  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "nexus_session", "secret", time.Hour, false)
	repo := newMemRepo()
	svc := auth.NewService(repo)
	h := auth.NewHandler(nil, svc, sessions, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(sessions.Middleware(nil))
	r.Route("/auth", h.MountRoutes)
	return &fixture{router: r, service: svc, repo: repo, cookie: sessions.CookieName()}
}

func (f *fixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cookie {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestLoginMeLogout(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.CreateUser(context.Background(), auth.NewUser{
		Email: "Kofi@GreenGold.example", Name: "Kofi", Password: "correct-horse", Role: shared.RoleAccountant,
	})
	require.NoError(t, err)
	assert.Equal(t, "kofi@greengold.example", created.Email)

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"kofi@greengold.example","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		User        auth.User `json:"user"`
		Permissions []string  `json:"permissions"`
		CSRFToken   string    `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, created.ID, body.User.ID)
	assert.Equal(t, shared.RoleAccountant, body.User.Role)
	assert.Contains(t, body.Permissions, shared.PermLedgerEdit)
	assert.NotEmpty(t, body.CSRFToken)
	assert.NotContains(t, rec.Body.String(), "correct-horse")
	cookie := f.sessionCookie(t, rec)

	me := f.do(t, http.MethodGet, "/auth/me", "", cookie)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), created.ID.String())

	out := f.do(t, http.MethodPost, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusNoContent, out.Code)

	after := f.do(t, http.MethodGet, "/auth/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestLoginRenewsSessionID(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateUser(context.Background(), auth.NewUser{Email: "hr@greengold.example", Password: "long-enough", Role: shared.RoleHR})
	require.NoError(t, err)

	pre := f.do(t, http.MethodGet, "/auth/csrf", "")
	require.Equal(t, http.StatusOK, pre.Code)
	anon := f.sessionCookie(t, pre)

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"hr@greengold.example","password":"long-enough"}`, anon)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, anon.Value, f.sessionCookie(t, rec).Value)
}

func TestLoginRejects(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateUser(context.Background(), auth.NewUser{Email: "staff@greengold.example", Password: "rightpass", Role: shared.RoleStaff})
	require.NoError(t, err)

	inactive, err := f.service.CreateUser(context.Background(), auth.NewUser{Email: "gone@greengold.example", Password: "rightpass", Role: shared.RoleStaff})
	require.NoError(t, err)
	inactive.IsActive = false
	f.repo.users[inactive.ID] = inactive

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"wrong password", `{"email":"staff@greengold.example","password":"wrongpass"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"nobody@greengold.example","password":"rightpass"}`, http.StatusUnauthorized},
		{"inactive", `{"email":"gone@greengold.example","password":"rightpass"}`, http.StatusUnauthorized},
		{"bad email", `{"email":"not-an-email","password":"rightpass"}`, http.StatusBadRequest},
		{"short password", `{"email":"staff@greengold.example","password":"short"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/login", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.CreateUser(ctx, auth.NewUser{Email: "a@greengold.example", Password: "password1", Role: "owner"})
	assert.ErrorIs(t, err, auth.ErrInvalidRole)

	_, err = f.service.CreateUser(ctx, auth.NewUser{Email: "a@greengold.example", Password: "password1", Role: shared.RoleAdmin})
	require.NoError(t, err)
	_, err = f.service.CreateUser(ctx, auth.NewUser{Email: "A@greengold.example", Password: "password1", Role: shared.RoleAdmin})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}
