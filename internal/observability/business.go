package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// BusinessMetrics counts ledger, web order, stock and payroll events.
// Methods are safe on a nil receiver.
type BusinessMetrics struct {
	invoices        *prometheus.CounterVec
	invoiceAmount   prometheus.Counter
	payments        *prometheus.CounterVec
	paymentAmount   prometheus.Counter
	webOrders       *prometheus.CounterVec
	stockConflicts  *prometheus.CounterVec
	payrollRuns     prometheus.Counter
	payrollAmount   prometheus.Counter
	integrityIssues *prometheus.GaugeVec
}

// NewBusinessMetrics registers the domain collectors on reg.
func NewBusinessMetrics(registerer prometheus.Registerer) *BusinessMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &BusinessMetrics{
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_invoices_created_total",
			Help: "Invoices created, by origin.",
		}, []string{"origin"}),
		invoiceAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_invoiced_amount_total",
			Help: "Total value of invoices created.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_payments_recorded_total",
			Help: "Payments recorded, by resulting entry status.",
		}, []string{"status"}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_payments_amount_total",
			Help: "Total value of payments received.",
		}),
		webOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_web_orders_total",
			Help: "Web orders by stage (received, processed).",
		}, []string{"stage"}),
		stockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_stock_conflicts_total",
			Help: "Operations rejected for insufficient stock.",
		}, []string{"flow"}),
		payrollRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_payroll_runs_total",
			Help: "Payroll runs posted.",
		}),
		payrollAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_payroll_paid_amount_total",
			Help: "Total net pay disbursed.",
		}),
		integrityIssues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_integrity_findings",
			Help: "Findings from the latest integrity scan, by check.",
		}, []string{"check"}),
	}
	registerer.MustRegister(m.invoices, m.invoiceAmount, m.payments, m.paymentAmount,
		m.webOrders, m.stockConflicts, m.payrollRuns, m.payrollAmount, m.integrityIssues)
	return m
}

// InvoiceCreated counts a new invoice and its amount.
func (m *BusinessMetrics) InvoiceCreated(origin string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(origin).Inc()
	m.invoiceAmount.Add(amount.InexactFloat64())
}

// PaymentRecorded counts a payment, labelled by the entry status it produced.
func (m *BusinessMetrics) PaymentRecorded(status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
	m.paymentAmount.Add(amount.InexactFloat64())
}

// WebOrderReceived counts a storefront checkout.
func (m *BusinessMetrics) WebOrderReceived() {
	if m == nil {
		return
	}
	m.webOrders.WithLabelValues("received").Inc()
}

// WebOrderProcessed counts a reconciled web order.
func (m *BusinessMetrics) WebOrderProcessed() {
	if m == nil {
		return
	}
	m.webOrders.WithLabelValues("processed").Inc()
}

// StockConflict counts a sale rejected for insufficient stock.
func (m *BusinessMetrics) StockConflict(flow string) {
	if m == nil {
		return
	}
	m.stockConflicts.WithLabelValues(flow).Inc()
}

// PayrollRun counts a posted run and its total.
func (m *BusinessMetrics) PayrollRun(total decimal.Decimal) {
	if m == nil {
		return
	}
	m.payrollRuns.Inc()
	m.payrollAmount.Add(total.InexactFloat64())
}

// IntegrityFindings replaces the gauge values with the latest scan.
func (m *BusinessMetrics) IntegrityFindings(check string, count int) {
	if m == nil {
		return
	}
	m.integrityIssues.WithLabelValues(check).Set(float64(count))
}
