package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	netmail "net/mail"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/integrity"
	jobmetrics "github.com/greengold/nexus/internal/jobs"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/settings"
)

type entryStub map[uuid.UUID]ledger.Entry

func (s entryStub) GetEntry(_ context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok := s[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return e, nil
}

type customerStub map[uuid.UUID]customers.Customer

func (s customerStub) Get(_ context.Context, id uuid.UUID) (customers.Customer, error) {
	c, ok := s[id]
	if !ok {
		return customers.Customer{}, customers.ErrCustomerNotFound
	}
	return c, nil
}

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func receiptTask(t *testing.T, id uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := NewReceiptTask(id)
	require.NoError(t, err)
	return task
}

func webEntry(customerID *uuid.UUID) ledger.Entry {
	return ledger.Entry{
		ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginWeb,
		Date:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("1250.5"), AmountPaid: decimal.RequireFromString("1250.5"),
		Items:     []ledger.Item{{Description: "Fiddle Leaf Fig", Price: decimal.RequireFromString("625.25"), Qty: 2}},
		Breakdown: &ledger.Breakdown{SubTotal: decimal.RequireFromString("1250.5")},
		CustomerID: customerID,
		WebOrder: &ledger.WebOrder{
			InvoiceNumber: "INV-000042", PaymentMethod: ledger.PaymentMethodMobile, Processed: true,
			Contact: ledger.Contact{Name: "Ama Owusu", Email: "ama@example.com"},
		},
	}
}

func TestReceiptJobSendsToCustomerEmail(t *testing.T) {
	cid := uuid.New()
	e := webEntry(&cid)
	mailer := &recordingMailer{}
	job := &ReceiptJob{
		Entries:   entryStub{e.ID: e},
		Customers: customerStub{cid: {ID: cid, Name: "Ama O.", Email: "billing@owusu.example"}},
		Settings:  settings.Static(settings.Defaults()),
		Mailer:    mailer,
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	require.NoError(t, job.Handle(context.Background(), receiptTask(t, e.ID)))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "billing@owusu.example", msg.To)
	assert.Contains(t, msg.Subject, "INV-000042")
	assert.Contains(t, msg.Body, "Hello Ama O.,")
	assert.Contains(t, msg.Body, "2 x Fiddle Leaf Fig  GH₵1,250.50")
	assert.Contains(t, msg.Body, "Total: GH₵1,250.50")
	assert.Contains(t, msg.Body, "Payment method: Mobile Money")
}

func TestReceiptJobFallsBackToContact(t *testing.T) {
	e := webEntry(nil)
	mailer := &recordingMailer{}
	job := &ReceiptJob{Entries: entryStub{e.ID: e}, Mailer: mailer}
	require.NoError(t, job.Handle(context.Background(), receiptTask(t, e.ID)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ama@example.com", mailer.sent[0].To)
}

func TestReceiptJobSkips(t *testing.T) {
	noEmail := webEntry(nil)
	noEmail.WebOrder.Contact.Email = ""
	mailer := &recordingMailer{}
	job := &ReceiptJob{Entries: entryStub{noEmail.ID: noEmail}, Mailer: mailer}

	require.NoError(t, job.Handle(context.Background(), receiptTask(t, noEmail.ID)))
	require.NoError(t, job.Handle(context.Background(), receiptTask(t, uuid.New())))
	assert.Empty(t, mailer.sent)

	bad := asynq.NewTask(TaskSendReceipt, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestReceiptJobRetriesMailFailure(t *testing.T) {
	e := webEntry(nil)
	boom := errors.New("relay down")
	job := &ReceiptJob{Entries: entryStub{e.ID: e}, Mailer: &recordingMailer{err: boom}}
	assert.ErrorIs(t, job.Handle(context.Background(), receiptTask(t, e.ID)), boom)
}

type cleanerStub struct {
	got time.Duration
	n   int64
}

func (c *cleanerStub) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.got = olderThan
	return c.n, nil
}

func TestCleanupJobRetention(t *testing.T) {
	store := &cleanerStub{n: 3}
	job := NewCleanupJob(store, 0, nil, nil)

	task, err := NewCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, DefaultRetention, store.got)

	task, err = NewCleanupTask(12)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 12*time.Hour, store.got)
}

type scannerStub struct {
	report integrity.Report
	err    error
}

func (s scannerStub) Scan(context.Context) (integrity.Report, error) { return s.report, s.err }

func TestIntegrityScanJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	ok := NewIntegrityScanJob(scannerStub{report: integrity.Report{Findings: []integrity.Finding{{Check: integrity.CheckNegativeStock}}}}, nil, metrics)
	require.NoError(t, ok.Handle(context.Background(), NewIntegrityScanTask()))

	boom := errors.New("snapshot failed")
	failing := NewIntegrityScanJob(scannerStub{err: boom}, nil, metrics)
	assert.ErrorIs(t, failing.Handle(context.Background(), NewIntegrityScanTask()), boom)

	families, err := reg.Gather()
	require.NoError(t, err)
	statuses := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "nexus_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" {
					statuses[l.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, statuses["success"])
	assert.Equal(t, 1.0, statuses["failure"])
}

type enqueuerStub struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *enqueuerStub) Close() error { return nil }

func TestClientEnqueueReceipt(t *testing.T) {
	stub := &enqueuerStub{}
	client := NewClientWith(stub)
	id := uuid.New()
	require.NoError(t, client.EnqueueReceipt(context.Background(), id))
	require.Len(t, stub.tasks, 1)
	assert.Equal(t, TaskSendReceipt, stub.tasks[0].Type())
	var payload ReceiptPayload
	require.NoError(t, json.Unmarshal(stub.tasks[0].Payload(), &payload))
	assert.Equal(t, id, payload.EntryID)

	stub.err = asynq.ErrTaskIDConflict
	assert.NoError(t, client.EnqueueReceipt(context.Background(), id))
	assert.Error(t, client.EnqueueReceipt(context.Background(), uuid.Nil))
}

func TestClientTrigger(t *testing.T) {
	stub := &enqueuerStub{}
	client := NewClientWith(stub)
	for _, name := range Triggerable {
		info, err := client.Trigger(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, name, info.Type)
	}
	_, err := client.Trigger(context.Background(), TaskSendReceipt)
	assert.Error(t, err)
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (i inspectorStub) GetQueueInfo(string) (*asynq.QueueInfo, error) { return i.info, i.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"redis down", inspectorStub{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var sent *gomail.Msg
	m := &SMTPMailer{
		cfg: SMTPConfig{Host: "mail.local", Port: 1025, From: "shop@greengold.example"},
		send: func(_ context.Context, msg *gomail.Msg) error {
			sent = msg
			return nil
		},
	}
	require.NoError(t, m.Send(context.Background(), Message{To: "ama@example.com", Subject: "Receipt", Body: "line one\nline two"}))
	require.NotNil(t, sent)
	parsed := readMessage(t, sent)
	assert.Equal(t, "Receipt", parsed.Header.Get("Subject"))
	assert.Equal(t, "<ama@example.com>", parsed.Header.Get("To"))
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "line two")

	_, isLog := NewMailer(SMTPConfig{}, nil).(LogMailer)
	assert.True(t, isLog)
}

func TestReceiptSubjectCannotInjectHeaders(t *testing.T) {
	profile := settings.Defaults()
	profile.CompanyName = "Green Gold\r\nBcc: attacker@example.com\r\nX-Evil: 1"
	e := webEntry(nil)
	msg := ReceiptMessage(e, "Ama", "ama@example.com", profile)

	out, err := buildMessage("shop@greengold.example", msg)
	require.NoError(t, err)
	parsed := readMessage(t, out)
	assert.Empty(t, parsed.Header.Get("Bcc"))
	assert.Empty(t, parsed.Header.Get("X-Evil"))

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)
}

func TestReceiptSubjectEncodesNonASCII(t *testing.T) {
	profile := settings.Defaults()
	profile.CompanyName = "Gärten"
	msg := ReceiptMessage(webEntry(nil), "Ama", "ama@example.com", profile)

	out, err := buildMessage("shop@greengold.example", msg)
	require.NoError(t, err)
	raw := readMessage(t, out).Header.Get("Subject")
	assert.True(t, strings.HasPrefix(strings.ToLower(raw), "=?utf-8?q?"), raw)
	subject, err := new(mime.WordDecoder).DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	_, err := buildMessage("shop@greengold.example", Message{To: "ama@example.com\r\nBcc: x@example.com", Subject: "Receipt"})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestReceiptJobSkipsUnusableAddress(t *testing.T) {
	e := webEntry(nil)
	job := &ReceiptJob{Entries: entryStub{e.ID: e}, Mailer: &recordingMailer{err: fmt.Errorf("%w: to", ErrInvalidAddress)}}
	require.NoError(t, job.Handle(context.Background(), receiptTask(t, e.ID)))
}

func readMessage(t *testing.T, msg *gomail.Msg) *netmail.Message {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	parsed, err := netmail.ReadMessage(&buf)
	require.NoError(t, err)
	return parsed
}
