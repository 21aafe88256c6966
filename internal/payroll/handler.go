package payroll

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler wires HTTP endpoints for payroll and the staff register.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the payroll handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPayrollView))
		r.Get("/employees", h.listEmployees)
		r.Get("/employees/{id}", h.getEmployee)
		r.Get("/employees/{id}/records", h.listRecords)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
		r.Post("/runs/preview", h.preview)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermEmployeesEdit))
		r.Post("/employees", h.createEmployee)
		r.Put("/employees/{id}", h.updateEmployee)
		r.Delete("/employees/{id}", h.deleteEmployee)
		r.Post("/employees/{id}/records", h.addRecord)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPayrollRun))
		r.Post("/runs", h.run)
	})
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListEmployees(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.fail(w, "list employees", err)
		return
	}
	if list == nil {
		list = []Employee{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": list})
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "employee")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.GetEmployee(r.Context(), id)
	if err != nil {
		h.fail(w, "get employee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var in EmployeeInput
	if !h.decode(w, r, &in) {
		return
	}
	e, err := h.service.CreateEmployee(r.Context(), in)
	if err != nil {
		h.fail(w, "create employee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "employee")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in EmployeeInput
	if !h.decode(w, r, &in) {
		return
	}
	e, err := h.service.UpdateEmployee(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update employee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "employee")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteEmployee(r.Context(), id); err != nil {
		h.fail(w, "delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "employee")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recs, err := h.service.ListRecords(r.Context(), id)
	if err != nil {
		h.fail(w, "list hr records", err)
		return
	}
	if recs == nil {
		recs = []HRRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (h *Handler) addRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "employee")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RecordInput
	if !h.decode(w, r, &in) {
		return
	}
	rec, err := h.service.AddRecord(r.Context(), id, in)
	if err != nil {
		h.fail(w, "add hr record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.fail(w, "list payroll runs", err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "run")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, "get payroll run", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, "preview payroll", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	run, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.fail(w, "run payroll", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s id", httpx.ErrValidation, what)
	}
	return id, nil
}
