// Package policy holds the pure access-scoping rules gating every invoice and
// administrative operation. Functions here have no side effects and touch no
// storage; callers decide how a denial surfaces (404 for invoice-scoped
// resources, 403 for administrative ones).
package policy

import (
	"echallan-backend/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated principal a request runs as, as carried in the
// access token claims.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     model.Role
	BranchID *uuid.UUID
}

// CanManageBranches gates branch create/update/deactivate.
func CanManageBranches(a Actor) bool {
	return a.Role == model.RoleUltraAdmin
}

// CanManageUsers gates user provisioning and administration.
func CanManageUsers(a Actor) bool {
	return a.Role == model.RoleUltraAdmin
}

// CanViewInvoice reports whether the actor may read or mutate the challan.
// True iff the actor's branch matches the challan's snapshot branch, or the
// actor is an ultra admin. An actor with no branch sees nothing unless
// privileged by role.
func CanViewInvoice(a Actor, inv *model.Invoice) bool {
	if a.Role == model.RoleUltraAdmin {
		return true
	}
	if a.BranchID == nil || inv.BranchID == nil {
		return false
	}
	return *a.BranchID == *inv.BranchID
}

// CanAttachFile gates the attachment write path. Co-officers may attach files
// to challans of any branch; everyone else follows the view rule.
func CanAttachFile(a Actor, inv *model.Invoice) bool {
	if a.Role == model.RoleCoOfficer {
		return true
	}
	return CanViewInvoice(a, inv)
}

// CanConfirmAttachment gates persisting an object key onto a challan, which
// requires co-officer privilege or above.
func CanConfirmAttachment(a Actor) bool {
	return a.Role.AtLeast(model.RoleCoOfficer)
}

// SeesAllBranches reports whether listing should skip branch filtering.
func SeesAllBranches(a Actor) bool {
	return a.Role == model.RoleUltraAdmin
}
