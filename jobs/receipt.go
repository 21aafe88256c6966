package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/greengold/nexus/internal/customers"
	jobmetrics "github.com/greengold/nexus/internal/jobs"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/settings"
)

// EntryReader loads ledger entries.
type EntryReader interface {
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
}

// CustomerReader loads customers.
type CustomerReader interface {
	Get(ctx context.Context, id uuid.UUID) (customers.Customer, error)
}

// SettingsSource yields the business profile.
type SettingsSource interface {
	Current() settings.Settings
}

// ReceiptJob emails a receipt once a web order has been settled.
type ReceiptJob struct {
	Entries   EntryReader
	Customers CustomerReader
	Settings  SettingsSource
	Mailer    Mailer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle sends the receipt. Entries that vanished or have no address are
// skipped without retry.
func (j *ReceiptJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Entries == nil || j.Mailer == nil {
		return errors.New("receipt: handler not configured")
	}
	var payload ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.EntryID == uuid.Nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskSendReceipt)
	defer func() { err = tracker.End(err) }()
	logger := jobLogger(j.Logger, TaskSendReceipt).With(slog.String("entry_id", payload.EntryID.String()))

	entry, err := j.Entries.GetEntry(ctx, payload.EntryID)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		j.Metrics.Receipt("skipped")
		logger.Warn("receipt entry missing")
		return nil
	}
	if err != nil {
		return err
	}
	to, name := j.recipient(ctx, entry)
	if to == "" {
		j.Metrics.Receipt("skipped")
		logger.Info("receipt skipped: no email address")
		return nil
	}
	profile := settings.Defaults()
	if j.Settings != nil {
		profile = j.Settings.Current()
	}
	msg := ReceiptMessage(entry, name, to, profile)
	if err := j.Mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrInvalidAddress) {
			j.Metrics.Receipt("skipped")
			logger.Warn("receipt skipped: unusable address", slog.Any("error", err))
			return nil
		}
		j.Metrics.Receipt("failed")
		return err
	}
	j.Metrics.Receipt("sent")
	logger.Info("receipt sent", slog.String("to", to))
	return nil
}

func (j *ReceiptJob) recipient(ctx context.Context, e ledger.Entry) (email, name string) {
	if e.WebOrder != nil {
		email, name = e.WebOrder.Contact.Email, e.WebOrder.Contact.Name
	}
	if e.CustomerID != nil && j.Customers != nil {
		if c, err := j.Customers.Get(ctx, *e.CustomerID); err == nil {
			if c.Email != "" {
				email = c.Email
			}
			name = c.Name
		}
	}
	return strings.TrimSpace(email), name
}

// ReceiptMessage renders the plain-text receipt for e.
func ReceiptMessage(e ledger.Entry, name, to string, s settings.Settings) Message {
	ref := e.ID.String()
	if e.WebOrder != nil && e.WebOrder.InvoiceNumber != "" {
		ref = e.WebOrder.InvoiceNumber
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", strings.TrimSpace(name))
	fmt.Fprintf(&b, "Thank you for your order. This is your receipt for %s dated %s.\n\n", ref, e.Date.Format("2 Jan 2006"))
	for _, it := range e.Items {
		fmt.Fprintf(&b, "  %d x %s  %s\n", it.Qty, it.Description, money.Format(it.LineTotal(), s.CurrencySymbol))
	}
	if bd := e.Breakdown; bd != nil {
		fmt.Fprintf(&b, "\nSubtotal: %s\n", money.Format(bd.SubTotal, s.CurrencySymbol))
		if bd.DiscountAmount.IsPositive() {
			fmt.Fprintf(&b, "%s: -%s\n", bd.DiscountName, money.Format(bd.DiscountAmount, s.CurrencySymbol))
		}
		if bd.TaxAmount.IsPositive() {
			fmt.Fprintf(&b, "%s: %s\n", bd.TaxName, money.Format(bd.TaxAmount, s.CurrencySymbol))
		}
	}
	fmt.Fprintf(&b, "Total: %s\n", money.Format(e.Amount, s.CurrencySymbol))
	fmt.Fprintf(&b, "Paid: %s\n", money.Format(e.AmountPaid, s.CurrencySymbol))
	if e.WebOrder != nil && e.WebOrder.PaymentMethod != "" {
		fmt.Fprintf(&b, "Payment method: %s\n", e.WebOrder.PaymentMethod)
	}
	fmt.Fprintf(&b, "\n%s\n%s\n", s.CompanyName, s.CompanyAddress)
	if s.CompanyPhone != "" {
		fmt.Fprintf(&b, "%s\n", s.CompanyPhone)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s receipt %s", s.CompanyName, ref),
		Body:    b.String(),
	}
}
