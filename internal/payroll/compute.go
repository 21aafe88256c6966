package payroll

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
)

// ComputeRun prices a run: netPay = base + bonus - deduction per employee,
// in the order given, and the total is their sum.
func ComputeRun(employees []Employee, adjustments []Adjustment) ([]Line, decimal.Decimal, error) {
	if len(employees) == 0 {
		return nil, decimal.Zero, ErrNoEmployees
	}
	byEmployee := make(map[uuid.UUID]Adjustment, len(adjustments))
	included := make(map[uuid.UUID]bool, len(employees))
	for _, e := range employees {
		included[e.ID] = true
	}
	for _, a := range adjustments {
		if !included[a.EmployeeID] {
			return nil, decimal.Zero, fmt.Errorf("%w: adjustment for employee %s outside the run", ErrInvalidRun, a.EmployeeID)
		}
		if _, dup := byEmployee[a.EmployeeID]; dup {
			return nil, decimal.Zero, fmt.Errorf("%w: employee %s adjusted twice", ErrInvalidRun, a.EmployeeID)
		}
		if a.Bonus.IsNegative() || a.Deduction.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("%w: bonus and deduction must not be negative", ErrInvalidRun)
		}
		if !money.HasCents(a.Bonus) || !money.HasCents(a.Deduction) {
			return nil, decimal.Zero, fmt.Errorf("%w: adjustments must be whole cents", ErrInvalidRun)
		}
		byEmployee[a.EmployeeID] = a
	}

	lines := make([]Line, 0, len(employees))
	total := decimal.Zero
	for _, e := range employees {
		a := byEmployee[e.ID]
		net := e.BaseSalary.Add(a.Bonus).Sub(a.Deduction)
		if net.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("%w: net pay for %s would be negative", ErrInvalidRun, e.Name)
		}
		lines = append(lines, Line{
			EmployeeID:   e.ID,
			EmployeeName: e.Name,
			BaseSalary:   e.BaseSalary,
			Bonus:        a.Bonus,
			Deduction:    a.Deduction,
			NetPay:       net,
		})
		total = total.Add(net)
	}
	return lines, total, nil
}

// Total re-adds a run's lines; integrity checks compare it to TotalPaid.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.NetPay)
	}
	return sum
}
