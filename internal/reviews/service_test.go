package reviews

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

type memoryRepo struct {
	reviews map[uuid.UUID]Review
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{reviews: map[uuid.UUID]Review{}}
}

func (m *memoryRepo) Insert(ctx context.Context, r Review) error {
	m.reviews[r.ID] = r
	return nil
}

func (m *memoryRepo) List(ctx context.Context, f Filter) ([]Review, error) {
	var out []Review
	for _, r := range m.reviews {
		if f.Approved == nil || r.Approved == *f.Approved {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepo) Approve(ctx context.Context, id uuid.UUID, at time.Time) (Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return Review{}, ErrReviewNotFound
	}
	r.Approved = true
	if r.ApprovedAt == nil {
		r.ApprovedAt = &at
	}
	m.reviews[id] = r
	return r, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.reviews[id]; !ok {
		return ErrReviewNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *memoryRepo) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	total := 0
	for _, r := range m.reviews {
		if r.Approved {
			s.Published++
		} else {
			s.Pending++
		}
		total += r.Rating
	}
	if n := len(m.reviews); n > 0 {
		s.AverageRating = float64(total) / float64(n)
	}
	return s, nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type recordingPublisher struct {
	changes []events.Change
}

func (p *recordingPublisher) Publish(ctx context.Context, changes ...events.Change) {
	p.changes = append(p.changes, changes...)
}

func as(role shared.Role) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: role})
}

func TestSubmittedReviewsWaitForApproval(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	pub := &recordingPublisher{}
	svc := NewService(repo, audit, pub, nil)

	r, err := svc.Submit(context.Background(), Submission{Name: " Adwoa ", Rating: 5, Text: "Lovely ferns"})
	require.NoError(t, err)
	require.False(t, r.Approved)
	require.Equal(t, "Adwoa", r.Name)

	published, err := svc.Published(context.Background())
	require.NoError(t, err)
	require.Empty(t, published)

	_, err = svc.Approve(as(shared.RoleAccountant), r.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	approved, err := svc.Approve(as(shared.RoleStaff), r.ID)
	require.NoError(t, err)
	require.True(t, approved.Approved)
	first := *approved.ApprovedAt

	again, err := svc.Approve(as(shared.RoleStaff), r.ID)
	require.NoError(t, err)
	require.Equal(t, first, *again.ApprovedAt)

	published, err = svc.Published(context.Background())
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, "Lovely ferns", published[0].Text)

	require.Equal(t, []string{"review.approved", "review.approved"}, audit.actions)
	require.Equal(t, events.Reviews, pub.changes[0].Collection)
}

func TestSubmitRejectsBadRatings(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	for _, rating := range []int{0, 6, -1} {
		_, err := svc.Submit(context.Background(), Submission{Name: "Yaw", Rating: rating, Text: "ok"})
		require.ErrorIs(t, err, httpx.ErrValidation)
	}
	_, err := svc.Submit(context.Background(), Submission{Name: "Yaw", Rating: 4, Text: "   "})
	require.ErrorIs(t, err, ErrInvalidReview)
}

func TestSummaryAndDelete(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	a, err := svc.Submit(context.Background(), Submission{Name: "A", Rating: 5, Text: "great"})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), Submission{Name: "B", Rating: 4, Text: "good"})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), Submission{Name: "C", Rating: 4, Text: "fine"})
	require.NoError(t, err)
	_, err = svc.Approve(as(shared.RoleAdmin), a.ID)
	require.NoError(t, err)

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Pending)
	require.Equal(t, 1, sum.Published)
	require.Equal(t, 4.3, sum.AverageRating)

	pending, err := svc.CountPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, pending)

	require.NoError(t, svc.Delete(as(shared.RoleAdmin), a.ID))
	require.ErrorIs(t, svc.Delete(as(shared.RoleAdmin), a.ID), ErrReviewNotFound)
}

func TestHandlerHidesModerationFields(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	h := NewHandler(slog.Default(), svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/shop", func(r chi.Router) {
		h.MountPublicRoutes(r)
		h.MountSubmitRoutes(r)
	})
	r.Route("/reviews", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(as(shared.RoleStaff)))
			})
		})
		h.MountRoutes(r)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shop/reviews", strings.NewReader(`{"name":"Efua","rating":5,"text":"Healthy plants"}`)))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shop/reviews", strings.NewReader(`{"name":"Efua","rating":9,"text":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews?state=pending", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Reviews []Review `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Reviews, 1)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reviews/"+body.Reviews[0].ID.String()+"/approve", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shop/reviews", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Healthy plants")
	require.NotContains(t, rr.Body.String(), "approved")
}
