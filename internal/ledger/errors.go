package ledger

import (
	"fmt"

	"github.com/greengold/nexus/internal/platform/httpx"
)

var (
	// ErrEntryNotFound is returned when no entry has the requested id.
	ErrEntryNotFound = fmt.Errorf("ledger entry %w", httpx.ErrNotFound)
	// ErrInvalidPayment rejects zero, negative or fractional-cent payments.
	ErrInvalidPayment = fmt.Errorf("%w: payment must be a positive amount in whole cents", httpx.ErrValidation)
	// ErrOverpayment rejects payments larger than the balance due.
	ErrOverpayment = fmt.Errorf("%w: payment exceeds balance due", httpx.ErrValidation)
	// ErrNotReceivable rejects payments against expenses.
	ErrNotReceivable = fmt.Errorf("%w: only income entries accept payments", httpx.ErrValidation)
	// ErrWebOrderPending rejects payments on web orders still in the inbox.
	ErrWebOrderPending = fmt.Errorf("%w: web orders are settled when processed", httpx.ErrConflict)
	// ErrEmptyCart rejects pricing with no lines.
	ErrEmptyCart = fmt.Errorf("%w: at least one line is required", httpx.ErrValidation)
	// ErrZeroTotal rejects carts that price to nothing.
	ErrZeroTotal = fmt.Errorf("%w: total must be greater than zero", httpx.ErrValidation)
	// ErrInvalidEntry wraps structural problems found by Validate.
	ErrInvalidEntry = fmt.Errorf("%w: invalid ledger entry", httpx.ErrValidation)
	// ErrPayrollLinked protects the expense half of a payroll run.
	ErrPayrollLinked = fmt.Errorf("%w: payroll entries are removed with their run only", httpx.ErrConflict)
	// ErrHasPayments protects entries that already received money.
	ErrHasPayments = fmt.Errorf("%w: entry has recorded payments", httpx.ErrConflict)
	// ErrUnknownCustomer rejects references to missing customers.
	ErrUnknownCustomer = fmt.Errorf("%w: customer does not exist", httpx.ErrValidation)
)
