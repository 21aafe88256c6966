// Package payroll keeps the staff register, HR notes, and the monthly
// payroll run that posts its total to the ledger as one expense.
package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/platform/httpx"
)

// Employee is a member of staff on the payroll.
type Employee struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Role       string          `json:"role"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	BaseSalary decimal.Decimal `json:"baseSalary"`
	Active     bool            `json:"active"`
	HiredAt    *time.Time      `json:"hiredAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Validate checks the stored shape of an employee.
func (e Employee) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEmployee)
	}
	if e.BaseSalary.IsNegative() || !money.HasCents(e.BaseSalary) {
		return fmt.Errorf("%w: base salary must be a non-negative amount in whole cents", ErrInvalidEmployee)
	}
	return nil
}

// EmployeeInput creates or replaces an employee's details.
type EmployeeInput struct {
	Name       string          `json:"name" validate:"required,max=200"`
	Role       string          `json:"role" validate:"max=100"`
	Email      string          `json:"email" validate:"omitempty,email,max=254"`
	Phone      string          `json:"phone" validate:"max=50"`
	BaseSalary decimal.Decimal `json:"baseSalary"`
	Active     *bool           `json:"active"`
	HiredAt    string          `json:"hiredAt" validate:"omitempty,datetime=2006-01-02"`
}

// RecordCategory classifies HR notes.
type RecordCategory string

const (
	RecordLeave     RecordCategory = "leave"
	RecordKPI       RecordCategory = "kpi"
	RecordComplaint RecordCategory = "complaint"
	RecordNote      RecordCategory = "note"
)

// HRRecord is a dated note in an employee's file.
type HRRecord struct {
	ID         uuid.UUID        `json:"id"`
	EmployeeID uuid.UUID        `json:"employeeId"`
	Category   RecordCategory   `json:"category"`
	Title      string           `json:"title"`
	Notes      string           `json:"notes"`
	Days       int              `json:"days"`
	Score      *decimal.Decimal `json:"score,omitempty"`
	Date       time.Time        `json:"date"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// RecordInput adds an HR record.
type RecordInput struct {
	Category string           `json:"category" validate:"required,oneof=leave kpi complaint note"`
	Title    string           `json:"title" validate:"required,max=200"`
	Notes    string           `json:"notes" validate:"max=4000"`
	Days     int              `json:"days" validate:"gte=0,lte=366"`
	Score    *decimal.Decimal `json:"score,omitempty"`
	Date     string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// Adjustment overrides one employee's bonus and deduction for a run.
type Adjustment struct {
	EmployeeID uuid.UUID       `json:"employeeId" validate:"required"`
	Bonus      decimal.Decimal `json:"bonus"`
	Deduction  decimal.Decimal `json:"deduction"`
}

// Line is one employee's pay in a run.
type Line struct {
	EmployeeID   uuid.UUID       `json:"employeeId"`
	EmployeeName string          `json:"employeeName"`
	BaseSalary   decimal.Decimal `json:"baseSalary"`
	Bonus        decimal.Decimal `json:"bonus"`
	Deduction    decimal.Decimal `json:"deduction"`
	NetPay       decimal.Decimal `json:"netPay"`
}

// Run is an immutable payroll run.
type Run struct {
	ID        uuid.UUID       `json:"id"`
	Month     string          `json:"month"`
	TotalPaid decimal.Decimal `json:"totalPaid"`
	Lines     []Line          `json:"lines"`
	EntryID   *uuid.UUID      `json:"entryId,omitempty"`
	CreatedBy *uuid.UUID      `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RunRequest asks for a payroll run. With no employee ids every active
// employee is paid, in name order.
type RunRequest struct {
	Month          string       `json:"month" validate:"required,datetime=2006-01"`
	EmployeeIDs    []uuid.UUID  `json:"employeeIds"`
	Adjustments    []Adjustment `json:"adjustments" validate:"dive"`
	IdempotencyKey string       `json:"-"`
}

var (
	// ErrEmployeeNotFound is returned for unknown employee ids.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", httpx.ErrNotFound)
	// ErrRunNotFound is returned for unknown payroll runs.
	ErrRunNotFound = fmt.Errorf("payroll run %w", httpx.ErrNotFound)
	// ErrInvalidEmployee wraps employee validation failures.
	ErrInvalidEmployee = fmt.Errorf("%w: invalid employee", httpx.ErrValidation)
	// ErrInvalidRecord wraps HR record validation failures.
	ErrInvalidRecord = fmt.Errorf("%w: invalid hr record", httpx.ErrValidation)
	// ErrInvalidRun wraps payroll computation failures.
	ErrInvalidRun = fmt.Errorf("%w: invalid payroll run", httpx.ErrValidation)
	// ErrNoEmployees rejects runs with nobody to pay.
	ErrNoEmployees = fmt.Errorf("%w: payroll run needs at least one employee", httpx.ErrValidation)
	// ErrEmployeePaid protects employees referenced by payroll history.
	ErrEmployeePaid = fmt.Errorf("%w: employee appears in payroll history; deactivate instead", httpx.ErrConflict)
)
