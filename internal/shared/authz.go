package shared

import (
	"context"
	"fmt"
	"sort"

	"github.com/greengold/nexus/internal/platform/httpx"
)

// Role is a staff role stored on the user record and in the session.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleHR         Role = "hr"
	RoleStaff      Role = "staff"
)

// Permissions checked by route middleware and by the services themselves.
const (
	PermLedgerView       = "ledger.view"
	PermLedgerEdit       = "ledger.edit"
	PermPaymentsRecord   = "payments.record"
	PermWebOrdersView    = "weborders.view"
	PermWebOrdersProcess = "weborders.process"
	PermCustomersView    = "customers.view"
	PermCustomersEdit    = "customers.edit"
	PermInventoryView    = "inventory.view"
	PermInventoryEdit    = "inventory.edit"
	PermPayrollView      = "payroll.view"
	PermPayrollRun       = "payroll.run"
	PermEmployeesEdit    = "employees.edit"
	PermReportsView      = "reports.view"
	PermSettingsEdit     = "settings.edit"
	PermIntegrityView    = "integrity.view"
	PermAuditView        = "audit.view"
	PermUsersManage      = "users.manage"
	PermBookingsView     = "bookings.view"
	PermBookingsManage   = "bookings.manage"
	PermReviewsModerate  = "reviews.moderate"
)

// AllPermissions lists every permission known to the system.
func AllPermissions() []string {
	return []string{
		PermLedgerView, PermLedgerEdit, PermPaymentsRecord,
		PermWebOrdersView, PermWebOrdersProcess,
		PermCustomersView, PermCustomersEdit,
		PermInventoryView, PermInventoryEdit,
		PermPayrollView, PermPayrollRun, PermEmployeesEdit,
		PermReportsView, PermSettingsEdit, PermIntegrityView, PermAuditView,
		PermUsersManage, PermBookingsView, PermBookingsManage, PermReviewsModerate,
	}
}

var rolePermissions = map[Role][]string{
	RoleAccountant: {
		PermLedgerView, PermLedgerEdit, PermPaymentsRecord,
		PermWebOrdersView, PermWebOrdersProcess,
		PermCustomersView, PermCustomersEdit,
		PermInventoryView, PermReportsView,
	},
	RoleHR: {
		PermPayrollView, PermPayrollRun, PermEmployeesEdit, PermLedgerView,
	},
	RoleStaff: {
		PermInventoryView, PermInventoryEdit, PermWebOrdersView, PermCustomersView,
		PermBookingsView, PermBookingsManage, PermReviewsModerate,
	},
}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	if r == RoleAdmin {
		return true
	}
	_, ok := rolePermissions[r]
	return ok
}

// PermissionsFor returns the sorted permissions granted to role.
func PermissionsFor(role Role) []string {
	var perms []string
	if role == RoleAdmin {
		perms = AllPermissions()
	} else {
		perms = append(perms, rolePermissions[role]...)
	}
	sort.Strings(perms)
	return perms
}

// Can reports whether role holds perm.
func Can(role Role, perm string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Authorize fails unless the actor in ctx holds perm.
func Authorize(ctx context.Context, perm string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: sign in required", httpx.ErrForbidden)
	}
	if !Can(actor.Role, perm) {
		return fmt.Errorf("%w: role %s lacks %s", httpx.ErrForbidden, actor.Role, perm)
	}
	return nil
}
