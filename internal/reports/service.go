// Package reports builds the dashboard, receivables and statements from the
// ledger, and exports the ledger as xlsx or csv.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/settings"
)

const topOpenInvoices = 5

// EntrySource reads ledger entries and their receipts.
type EntrySource interface {
	ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
	ListPayments(ctx context.Context, entryID uuid.UUID) ([]ledger.Payment, error)
}

// CustomerSource reads customers.
type CustomerSource interface {
	List(ctx context.Context, search string) ([]customers.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (customers.Customer, error)
}

// PendingCounter counts storefront requests waiting on staff.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// SettingsSource supplies the current business settings.
type SettingsSource interface {
	Current() settings.Settings
}

// OpenInvoice is an income entry with money still owed.
type OpenInvoice struct {
	EntryID      uuid.UUID       `json:"entryId"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	CustomerID   *uuid.UUID      `json:"customerId,omitempty"`
	CustomerName string          `json:"customerName"`
	Amount       decimal.Decimal `json:"amount"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	BalanceDue   decimal.Decimal `json:"balanceDue"`
	Status       ledger.Status   `json:"status"`
}

// Dashboard is the landing summary.
type Dashboard struct {
	ledger.Summary
	PendingWebOrders int           `json:"pendingWebOrders"`
	PendingBookings  int           `json:"pendingBookings"`
	PendingReviews   int           `json:"pendingReviews"`
	OpenInvoices     []OpenInvoice `json:"openInvoices"`
	Currency         string        `json:"currency"`
	GeneratedAt      time.Time     `json:"generatedAt"`
}

// Receivables lists every open income entry.
type Receivables struct {
	Rows  []OpenInvoice   `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// StatementLine is one entry on a customer statement.
type StatementLine struct {
	ledger.EntryView
	Payments []ledger.Payment `json:"payments"`
}

// Statement is a customer's account history.
type Statement struct {
	Customer customers.Customer `json:"customer"`
	Lines    []StatementLine    `json:"lines"`
	Invoiced decimal.Decimal    `json:"invoiced"`
	Paid     decimal.Decimal    `json:"paid"`
	TotalDue decimal.Decimal    `json:"totalDue"`
}

// Service coordinates report building with the cache layer.
type Service struct {
	entries   EntrySource
	customers CustomerSource
	settings  SettingsSource
	bookings  PendingCounter
	reviews   PendingCounter
	cache     *Cache
	flight    singleflight.Group
	now       func() time.Time
}

// NewService wires the report sources with a Cache helper.
func NewService(entries EntrySource, people CustomerSource, src SettingsSource, cache *Cache) *Service {
	return &Service{entries: entries, customers: people, settings: src, cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

// WithPending adds booking and review backlogs to the dashboard. Either may
// be nil.
func (s *Service) WithPending(bookings, reviews PendingCounter) *Service {
	s.bookings, s.reviews = bookings, reviews
	return s
}

// Dashboard returns the cached summary, building it at most once at a time.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard")
	if err != nil {
		return Dashboard{}, err
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		var out Dashboard
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.buildDashboard(ctx)
		})
		return out, err
	})
	if err != nil {
		return Dashboard{}, err
	}
	return v.(Dashboard), nil
}

func (s *Service) buildDashboard(ctx context.Context) (Dashboard, error) {
	entries, names, err := s.load(ctx, ledger.Filter{})
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		Summary:     ledger.Summarize(entries),
		Currency:    s.settings.Current().Currency,
		GeneratedAt: s.now(),
	}
	for _, e := range entries {
		if e.IsWebOrder() {
			d.PendingWebOrders++
		}
	}
	if s.bookings != nil {
		if d.PendingBookings, err = s.bookings.CountPending(ctx); err != nil {
			return Dashboard{}, err
		}
	}
	if s.reviews != nil {
		if d.PendingReviews, err = s.reviews.CountPending(ctx); err != nil {
			return Dashboard{}, err
		}
	}
	open := openInvoices(entries, names)
	if len(open) > topOpenInvoices {
		open = open[:topOpenInvoices]
	}
	d.OpenInvoices = open
	return d, nil
}

// Receivables lists open income entries, largest balance first.
func (s *Service) Receivables(ctx context.Context) (Receivables, error) {
	key, err := s.cache.BuildKey(ctx, "receivables")
	if err != nil {
		return Receivables{}, err
	}
	var out Receivables
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		entries, names, err := s.load(ctx, ledger.Filter{Kind: ledger.KindIncome})
		if err != nil {
			return nil, err
		}
		rows := openInvoices(entries, names)
		total := decimal.Zero
		for _, r := range rows {
			total = total.Add(r.BalanceDue)
		}
		return Receivables{Rows: rows, Total: total}, nil
	})
	return out, err
}

// CustomerStatement returns a customer's entries with their receipts.
func (s *Service) CustomerStatement(ctx context.Context, id uuid.UUID) (Statement, error) {
	var (
		cust    customers.Customer
		entries []ledger.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cust, err = s.customers.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.entries.ListEntries(gctx, ledger.Filter{CustomerID: &id})
		return err
	})
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}

	lines := make([]StatementLine, len(entries))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, e := range entries {
		i, e := i, e // per-iteration copies (module targets go 1.21 loop semantics)
		g.Go(func() error {
			payments, err := s.entries.ListPayments(gctx, e.ID)
			if err != nil {
				return err
			}
			if payments == nil {
				payments = []ledger.Payment{}
			}
			lines[i] = StatementLine{EntryView: ledger.NewEntryView(e), Payments: payments}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}

	st := Statement{Customer: cust, Lines: lines, Invoiced: decimal.Zero, Paid: decimal.Zero, TotalDue: decimal.Zero}
	for _, e := range entries {
		if !e.IsIncome() {
			continue
		}
		st.Invoiced = st.Invoiced.Add(e.Amount)
		st.Paid = st.Paid.Add(e.AmountPaid)
		st.TotalDue = st.TotalDue.Add(ledger.BalanceDue(e))
	}
	return st, nil
}

// LedgerExport returns every entry matching f with the customer names an
// export prints.
func (s *Service) LedgerExport(ctx context.Context, f ledger.Filter) ([]ledger.Entry, map[uuid.UUID]string, error) {
	f.Limit, f.Offset = 0, 0
	return s.load(ctx, f)
}

// Settings exposes the settings snapshot used by exports.
func (s *Service) Settings() settings.Settings {
	return s.settings.Current()
}

// load reads entries and customer names concurrently.
func (s *Service) load(ctx context.Context, f ledger.Filter) ([]ledger.Entry, map[uuid.UUID]string, error) {
	var (
		entries []ledger.Entry
		names   map[uuid.UUID]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.entries.ListEntries(gctx, f)
		return err
	})
	g.Go(func() error {
		list, err := s.customers.List(gctx, "")
		if err != nil {
			return err
		}
		names = make(map[uuid.UUID]string, len(list))
		for _, c := range list {
			names[c.ID] = c.Name
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return entries, names, nil
}

func openInvoices(entries []ledger.Entry, names map[uuid.UUID]string) []OpenInvoice {
	out := []OpenInvoice{}
	for _, e := range entries {
		if !e.IsIncome() || e.IsWebOrder() {
			continue
		}
		due := ledger.BalanceDue(e)
		if !due.IsPositive() {
			continue
		}
		row := OpenInvoice{
			EntryID:     e.ID,
			Date:        e.Date,
			Description: e.Description,
			CustomerID:  e.CustomerID,
			Amount:      e.Amount,
			AmountPaid:  e.AmountPaid,
			BalanceDue:  due,
			Status:      e.Status(),
		}
		if e.CustomerID != nil {
			row.CustomerName = names[*e.CustomerID]
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].BalanceDue.Cmp(out[j].BalanceDue); c != 0 {
			return c > 0
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
