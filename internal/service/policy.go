package service

import (
	"errors"

	"gudangtoko/backend/internal/domain"
)

// ErrForbidden is returned when the acting user's role does not permit an
// operation.
var ErrForbidden = errors.New("forbidden")

// Policy is the single place role rules are decided. Handlers gate routes
// by role; Policy covers the finer-grained checks that depend on both the
// actor and the target.
type Policy struct{}

func (Policy) CanManageCatalog(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin
}

func (Policy) CanApproveAdjustments(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin
}

func (Policy) CanViewUsers(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin
}

func (Policy) CanChangeRole(actor domain.Actor) bool {
	return actor.Role == domain.RoleSuperAdmin
}

// CanDeleteUser: the primary admin account can never be deleted. Admins may
// remove regular users; only a superAdmin may remove an admin, and nobody
// removes a superAdmin except the primary admin.
func (Policy) CanDeleteUser(actor domain.Actor, target domain.UserAccount) bool {
	if target.PrimaryAdmin {
		return false
	}
	if actor.ID == target.ID {
		return false
	}
	switch target.Role {
	case domain.RoleUser:
		return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin
	case domain.RoleAdmin:
		return actor.Role == domain.RoleSuperAdmin
	case domain.RoleSuperAdmin:
		return actor.PrimaryAdmin
	default:
		return false
	}
}
