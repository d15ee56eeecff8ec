package access

import (
	"testing"

	"civitec.org/internal/identity"
)

type fakeResource struct {
	sector    identity.Sector
	hasSector bool
	owner     string
	hasOwner  bool
}

func (r fakeResource) ResourceSector() (identity.Sector, bool) { return r.sector, r.hasSector }
func (r fakeResource) ResourceOwner() (string, bool)           { return r.owner, r.hasOwner }

func activeUser(role identity.Role, sector identity.Sector) *identity.User {
	return &identity.User{ID: "u-" + string(role), Role: role, Sector: sector, IsActive: true}
}

func sectorView(s identity.Sector) View { return View{Sector: &s} }

func TestAllowMasterAdmin(t *testing.T) {
	admin := activeUser(identity.RoleMasterAdmin, "")
	for _, action := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete} {
		if !Allow(admin, action, sectorView(identity.SectorObras)) {
			t.Errorf("master admin denied %s", action)
		}
	}
}

func TestAllowSectorIsolation(t *testing.T) {
	rhAdmin := activeUser(identity.RoleSectorAdmin, identity.SectorRH)

	if !Allow(rhAdmin, ActionDelete, sectorView(identity.SectorRH)) {
		t.Error("sector admin denied delete in own sector")
	}
	if Allow(rhAdmin, ActionRead, sectorView(identity.SectorTributos)) {
		t.Error("sector admin allowed into foreign sector")
	}
	if !Allow(rhAdmin, ActionRead, View{}) {
		t.Error("sector admin denied on sector-free view")
	}
}

func TestAllowOperatorCannotDelete(t *testing.T) {
	op := activeUser(identity.RoleSectorOperator, identity.SectorLicitacao)

	if !Allow(op, ActionUpdate, sectorView(identity.SectorLicitacao)) {
		t.Error("operator denied update in own sector")
	}
	if Allow(op, ActionDelete, sectorView(identity.SectorLicitacao)) {
		t.Error("operator allowed delete")
	}
}

func TestAllowEmployeeOperationLevel(t *testing.T) {
	emp := activeUser(identity.RoleEmployee, identity.SectorRH)

	if !Allow(emp, ActionRead, View{}) || !Allow(emp, ActionCreate, View{}) {
		t.Error("employee denied read/create")
	}
	if Allow(emp, ActionUpdate, View{}) || Allow(emp, ActionDelete, View{}) {
		t.Error("employee allowed blanket mutation")
	}
}

func TestAllowInactiveUserAlwaysDenied(t *testing.T) {
	u := activeUser(identity.RoleMasterAdmin, "")
	u.IsActive = false
	if Allow(u, ActionRead, View{}) {
		t.Error("inactive master admin allowed")
	}
	if AllowObject(u, ActionRead, fakeResource{}) {
		t.Error("inactive master admin allowed on object")
	}
	if Allow(nil, ActionRead, View{}) {
		t.Error("nil user allowed")
	}
}

func TestAllowObjectSectorBinding(t *testing.T) {
	rhAdmin := activeUser(identity.RoleSectorAdmin, identity.SectorRH)
	own := fakeResource{sector: identity.SectorRH, hasSector: true}
	foreign := fakeResource{sector: identity.SectorTributos, hasSector: true}
	unbound := fakeResource{}

	if !AllowObject(rhAdmin, ActionDelete, own) {
		t.Error("sector admin denied own-sector object")
	}
	if AllowObject(rhAdmin, ActionRead, foreign) {
		t.Error("sector admin allowed foreign-sector object")
	}
	if !AllowObject(rhAdmin, ActionRead, unbound) {
		t.Error("sector admin denied sector-free object")
	}
}

func TestAllowObjectEmployeeOwnership(t *testing.T) {
	emp := activeUser(identity.RoleEmployee, identity.SectorRH)
	mine := fakeResource{owner: emp.ID, hasOwner: true}
	theirs := fakeResource{owner: "someone-else", hasOwner: true}
	ownerless := fakeResource{}

	if !AllowObject(emp, ActionRead, mine) || !AllowObject(emp, ActionUpdate, mine) {
		t.Error("employee denied own object")
	}
	if AllowObject(emp, ActionRead, theirs) || AllowObject(emp, ActionDelete, theirs) {
		t.Error("employee allowed foreign object")
	}
	if AllowObject(emp, ActionRead, ownerless) {
		t.Error("employee allowed ownerless object")
	}
}
