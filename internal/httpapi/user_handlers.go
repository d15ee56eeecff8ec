package httpapi

import (
	"net/http"
	"strings"

	"civitec.org/internal/access"
	"civitec.org/internal/audit"
	"civitec.org/internal/identity"
)

// userResource adapts a user record for object-level access checks: a user
// belongs to its own sector and owns itself.
type userResource struct {
	u *identity.User
}

func (r userResource) ResourceSector() (identity.Sector, bool) {
	if r.u.Sector == "" {
		return "", false
	}
	return r.u.Sector, true
}

func (r userResource) ResourceOwner() (string, bool) {
	return r.u.ID, true
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !access.Allow(caller, access.ActionRead, access.View{}) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}

	users, err := a.users.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	// Non-admin callers only see records they could read object by object.
	visible := users[:0]
	for _, u := range users {
		if access.AllowObject(caller, access.ActionRead, userResource{u: u}) {
			visible = append(visible, u)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": visible})
}

// handleUserResource routes /v1/users/me, /v1/users/me/password,
// /v1/users/{id}/role and /v1/users/{id}/sector.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "me":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getMe(w, r)
	case rest == "me/password":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.changeOwnPassword(w, r)
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "role":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.changeUserRole(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "sector":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.changeUserSector(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, caller)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := a.users.Find(r.Context(), id)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	if !access.AllowObject(caller, access.ActionRead, userResource{u: user}) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

func (a *API) changeOwnPassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if identity.VerifyPassword(caller.PasswordHash, req.CurrentPassword) != nil {
		writeError(w, r, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if req.NewPassword != req.NewPasswordConfirm {
		writeError(w, r, http.StatusBadRequest, "passwords do not match")
		return
	}
	if violations := (identity.DefaultPasswordPolicy{}).Validate(req.NewPassword); len(violations) > 0 {
		writeError(w, r, http.StatusBadRequest, strings.Join(violations, "; "))
		return
	}

	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.users.UpdatePassword(r.Context(), caller.ID, hash); err != nil {
		handleInviteError(w, r, err)
		return
	}

	a.auditor.Record(r.Context(), caller.ID, audit.ActionUpdate, "user", caller.ID, map[string]any{
		"change": "password",
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "senha alterada com sucesso"})
}

type changeRoleRequest struct {
	RoleCode   string `json:"role_code"`
	SectorCode string `json:"sector_code"`
}

func (a *API) changeUserRole(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireMasterAdmin(w, r)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := identity.ParseRole(req.RoleCode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sector, err := identity.ParseSector(req.SectorCode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if role != identity.RoleMasterAdmin && sector == "" {
		writeError(w, r, http.StatusBadRequest, "sector_code is required for sector-bound roles")
		return
	}

	user, err := a.users.Find(r.Context(), id)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	user.Role = role
	user.Sector = sector
	if err := a.users.Update(r.Context(), user); err != nil {
		handleInviteError(w, r, err)
		return
	}

	a.auditor.Record(r.Context(), actor.ID, audit.ActionUpdate, "user", user.ID, map[string]any{
		"change":    "role",
		"role_code": string(role),
	})
	writeJSON(w, http.StatusOK, user)
}

type changeSectorRequest struct {
	SectorCode string `json:"sector_code"`
}

func (a *API) changeUserSector(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireMasterAdmin(w, r)
	if !ok {
		return
	}

	var req changeSectorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sector, err := identity.ParseSector(req.SectorCode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.users.Find(r.Context(), id)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	user.Sector = sector
	if err := a.users.Update(r.Context(), user); err != nil {
		handleInviteError(w, r, err)
		return
	}

	a.auditor.Record(r.Context(), actor.ID, audit.ActionUpdate, "user", user.ID, map[string]any{
		"change":      "sector",
		"sector_code": string(sector),
	})
	writeJSON(w, http.StatusOK, user)
}
