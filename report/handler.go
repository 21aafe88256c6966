package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/settings"
	"github.com/greengold/nexus/internal/shared"
)

// EntryReader loads ledger entries.
type EntryReader interface {
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
}

// CustomerReader loads customers.
type CustomerReader interface {
	Get(ctx context.Context, id uuid.UUID) (customers.Customer, error)
}

// SettingsSource yields the business profile printed on documents.
type SettingsSource interface {
	Current() settings.Settings
}

// PDFConverter turns HTML into PDF bytes.
type PDFConverter interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// HandlerConfig groups the collaborators of Handler.
type HandlerConfig struct {
	Entries   EntryReader
	Customers CustomerReader
	Settings  SettingsSource
	Renderer  *Renderer
	PDF       PDFConverter
	Logger    *slog.Logger
	RBAC      rbac.Middleware
}

// Handler serves printable invoices and receipts.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a document handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.cfg.RBAC.RequireAny(shared.PermLedgerView))
		r.Get("/entries/{id}/html", h.entryHTML)
		r.Get("/entries/{id}/pdf", h.entryPDF)
	})
}

func (h *Handler) entryHTML(w http.ResponseWriter, r *http.Request) {
	doc, html, ok := h.render(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s-%s.html"`, doc.Title, doc.Number))
	_, _ = w.Write(html)
}

func (h *Handler) entryPDF(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PDF == nil {
		httpx.RespondError(w, ErrPDFDisabled)
		return
	}
	doc, html, ok := h.render(w, r)
	if !ok {
		return
	}
	pdf, err := h.cfg.PDF.RenderHTML(r.Context(), html)
	if err != nil {
		h.fail(w, "render pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.pdf"`, doc.Title, doc.Number))
	if _, err := w.Write(pdf); err != nil {
		h.cfg.Logger.Warn("write pdf", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) (Document, []byte, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid entry id", httpx.ErrValidation))
		return Document{}, nil, false
	}
	e, err := h.cfg.Entries.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, "load entry", err)
		return Document{}, nil, false
	}
	var customer *customers.Customer
	if e.CustomerID != nil && h.cfg.Customers != nil {
		c, err := h.cfg.Customers.Get(r.Context(), *e.CustomerID)
		if err != nil && !errors.Is(err, httpx.ErrNotFound) {
			h.fail(w, "load customer", err)
			return Document{}, nil, false
		}
		if err == nil {
			customer = &c
		}
	}
	s := settings.Defaults()
	if h.cfg.Settings != nil {
		s = h.cfg.Settings.Current()
	}
	doc, err := NewDocument(e, customer, s)
	if err != nil {
		httpx.RespondError(w, err)
		return Document{}, nil, false
	}
	var buf bytes.Buffer
	if err := h.cfg.Renderer.HTML(&buf, doc); err != nil {
		h.fail(w, "render document", err)
		return Document{}, nil, false
	}
	return doc, buf.Bytes(), true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.cfg.Logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
