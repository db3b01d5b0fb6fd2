// Package access holds the authorization predicates of the workflow engine.
// Every decision is a pure function of the caller's TenantContext and the
// entities involved, so the rules can be tested exhaustively.
package access

import (
	"errors"

	"github.com/steveyegge/workgraph/internal/types"
)

// ErrForbidden is returned when the caller's role or ownership does not permit an action.
var ErrForbidden = errors.New("forbidden")

// IsElevated reports whether role may manage any instance of its tenant.
func IsElevated(role types.Role) bool {
	switch role {
	case types.RoleManager, types.RoleAdmin, types.RoleSuperAdmin:
		return true
	case types.RoleStaff:
		return false
	}
	return false
}

// SameTenant reports whether tenantID is the caller's tenant.
func SameTenant(tc types.TenantContext, tenantID string) bool {
	return tc.TenantID != "" && tc.TenantID == tenantID
}

// CanAddNode reports whether the caller may add ad-hoc nodes to inst.
func CanAddNode(tc types.TenantContext, inst *types.Instance) bool {
	return SameTenant(tc, inst.TenantID) && IsElevated(tc.Role)
}

// CanMutateNode reports whether the caller may change a node's status or
// details: an elevated role, the instance creator, the node's assignee, or
// anyone in the tenant when the node is unassigned.
func CanMutateNode(tc types.TenantContext, inst *types.Instance, node *types.InstanceNode) bool {
	if !SameTenant(tc, inst.TenantID) || node.InstanceID != inst.ID {
		return false
	}
	switch {
	case IsElevated(tc.Role):
		return true
	case inst.CreatedBy == tc.UserID:
		return true
	case node.IsUnassigned():
		return true
	default:
		return node.Assignee == tc.UserID
	}
}

// CanDeleteInstance reports whether the caller may delete inst.
func CanDeleteInstance(tc types.TenantContext, inst *types.Instance) bool {
	if !SameTenant(tc, inst.TenantID) {
		return false
	}
	return IsElevated(tc.Role) || inst.CreatedBy == tc.UserID
}

// CanInstantiate reports whether the caller may clone tpl.
func CanInstantiate(tc types.TenantContext, tpl *types.Template) bool {
	return SameTenant(tc, tpl.TenantID)
}
