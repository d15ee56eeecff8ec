// Package access decides whether a caller may act on a resource given their
// role and sector. The evaluator is stateless: callers pass the loaded user
// and either a view context (operation-level) or a Resource (object-level).
package access

import "civitec.org/internal/identity"

// Action is the operation being attempted.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// View describes the operation-level context of a request. Sector is nil when
// the endpoint is not bound to a single sector.
type View struct {
	Sector *identity.Sector
}

// Resource is implemented by every protected object. It exposes the two
// attributes the evaluator inspects: an owning sector and an owning user.
// Either may be absent.
type Resource interface {
	ResourceSector() (identity.Sector, bool)
	ResourceOwner() (userID string, ok bool)
}

// Allow evaluates an operation-level request.
//
// MASTER_ADMIN is allowed everywhere. Sector-bound roles are allowed when the
// view declares no sector or declares their own. EMPLOYEE may only read and
// create; object ownership is checked separately by AllowObject.
func Allow(u *identity.User, action Action, view View) bool {
	if u == nil || !u.IsActive {
		return false
	}
	switch {
	case u.IsMasterAdmin():
		return true
	case u.IsSectorAdmin():
		return sectorMatches(u, view)
	case u.IsSectorOperator():
		if action == ActionDelete {
			return false
		}
		return sectorMatches(u, view)
	case u.IsEmployee():
		return action == ActionRead || action == ActionCreate
	default:
		return false
	}
}

// AllowObject evaluates an object-level request against a concrete resource.
func AllowObject(u *identity.User, action Action, res Resource) bool {
	if u == nil || !u.IsActive {
		return false
	}
	switch {
	case u.IsMasterAdmin():
		return true
	case u.IsSectorAdmin(), u.IsSectorOperator():
		if u.IsSectorOperator() && action == ActionDelete {
			return false
		}
		if sector, ok := res.ResourceSector(); ok {
			return u.Sector == sector
		}
		return true
	case u.IsEmployee():
		if action == ActionUpdate || action == ActionDelete {
			// Employees may only mutate what they own.
			owner, ok := res.ResourceOwner()
			return ok && owner == u.ID
		}
		if owner, ok := res.ResourceOwner(); ok {
			return owner == u.ID
		}
		return false
	default:
		return false
	}
}

func sectorMatches(u *identity.User, view View) bool {
	if view.Sector == nil {
		return true
	}
	return u.Sector == *view.Sector
}
