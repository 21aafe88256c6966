package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryView is the JSON shape of an entry, with the derived fields filled in.
type EntryView struct {
	ID           uuid.UUID       `json:"id"`
	Type         Kind            `json:"type"`
	Origin       Origin          `json:"origin"`
	Category     string          `json:"category"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	BalanceDue   decimal.Decimal `json:"balanceDue"`
	Status       Status          `json:"status,omitempty"`
	Breakdown    *Breakdown      `json:"breakdown,omitempty"`
	Items        []Item          `json:"items,omitempty"`
	CustomerID   *uuid.UUID      `json:"customerId,omitempty"`
	IsWebOrder   bool            `json:"isWebOrder"`
	WebOrder     *WebOrder       `json:"webOrder,omitempty"`
	IsPayroll    bool            `json:"isPayroll"`
	PayrollRunID *uuid.UUID      `json:"payrollRunId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewEntryView renders e.
func NewEntryView(e Entry) EntryView {
	return EntryView{
		ID:           e.ID,
		Type:         e.Kind,
		Origin:       e.Origin,
		Category:     e.Category,
		Date:         e.Date.Format("2006-01-02"),
		Description:  e.Description,
		Amount:       e.Amount,
		AmountPaid:   e.AmountPaid,
		BalanceDue:   BalanceDue(e),
		Status:       e.Status(),
		Breakdown:    e.Breakdown,
		Items:        e.Items,
		CustomerID:   e.CustomerID,
		IsWebOrder:   e.IsWebOrder(),
		WebOrder:     e.WebOrder,
		IsPayroll:    e.IsPayroll(),
		PayrollRunID: e.PayrollRunID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// NewEntryViews renders a list, never returning nil.
func NewEntryViews(entries []Entry) []EntryView {
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewEntryView(e))
	}
	return out
}

// UpdateRequest is the PATCH body for an entry.
type UpdateRequest struct {
	Category    *string `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Date        *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// Patch converts the request into a DetailsPatch.
func (r UpdateRequest) Patch() (DetailsPatch, error) {
	p := DetailsPatch{Category: r.Category, Description: r.Description}
	if r.Date != nil {
		d, err := ParseDate(*r.Date, time.Time{})
		if err != nil {
			return DetailsPatch{}, err
		}
		p.Date = &d
	}
	return p, nil
}

type paymentResponse struct {
	Entry   EntryView `json:"entry"`
	Payment Payment   `json:"payment"`
}
