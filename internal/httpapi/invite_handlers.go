package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"civitec.org/internal/audit"
	"civitec.org/internal/identity"
	"civitec.org/internal/invite"
)

// handleInviteError maps workflow sentinels onto HTTP statuses. Validation
// failures and unusable invites are client errors; state conflicts are 409.
func handleInviteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, invite.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, invite.ErrInvalidCode),
		errors.Is(err, invite.ErrExpired),
		errors.Is(err, invite.ErrCancelled):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, invite.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, invite.ErrAlreadyAccepted),
		errors.Is(err, invite.ErrDuplicatePending),
		errors.Is(err, invite.ErrEmailTaken),
		errors.Is(err, invite.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, invite.ErrDelivery):
		writeError(w, r, http.StatusBadGateway, "invite notification could not be delivered")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

type createInviteRequest struct {
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	RoleCode   string `json:"role_code"`
	SectorCode string `json:"sector_code"`
}

func (a *API) handleInvitesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listInvites(w, r)
	case http.MethodPost:
		a.createInvite(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listInvites(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireMasterAdmin(w, r); !ok {
		return
	}
	invites, err := a.invites.List(r.Context())
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requireMasterAdmin(w, r)
	if !ok {
		return
	}

	var req createInviteRequest
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

	inv, err := a.invites.Create(r.Context(), invite.CreateParams{
		Email:     req.Email,
		FullName:  req.FullName,
		Role:      role,
		Sector:    sector,
		CreatedBy: actor.ID,
	})
	if err != nil {
		handleInviteError(w, r, err)
		return
	}

	a.auditor.Record(r.Context(), actor.ID, audit.ActionCreate, "invite", inv.ID, map[string]any{
		"email":     inv.Email,
		"role_code": string(inv.Role),
	})
	writeJSON(w, http.StatusCreated, inv)
}

// handleInviteResource routes /v1/invites/pending, /v1/invites/{id} and
// /v1/invites/{id}/cancel.
func (a *API) handleInviteResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invites/"), "/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if rest == "pending" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listPendingInvites(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getInvite(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.cancelInvite(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) listPendingInvites(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireMasterAdmin(w, r); !ok {
		return
	}
	invites, err := a.invites.ListPending(r.Context())
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (a *API) getInvite(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireMasterAdmin(w, r); !ok {
		return
	}
	inv, err := a.invites.Get(r.Context(), id)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) cancelInvite(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireMasterAdmin(w, r)
	if !ok {
		return
	}
	inv, err := a.invites.Cancel(r.Context(), id)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), actor.ID, audit.ActionCancel, "invite", inv.ID, map[string]any{
		"email": inv.Email,
	})
	writeJSON(w, http.StatusOK, inv)
}

type validateInviteRequest struct {
	Token        string `json:"token"`
	SecurityCode string `json:"security_code"`
}

func (a *API) handlePublicValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req validateInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := a.invites.Validate(r.Context(), req.Token, req.SecurityCode)
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type acceptInviteRequest struct {
	Token           string `json:"token"`
	SecurityCode    string `json:"security_code"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (a *API) handlePublicAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req acceptInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.invites.Accept(r.Context(), invite.AcceptParams{
		Token:           req.Token,
		SecurityCode:    req.SecurityCode,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		handleInviteError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), user.ID, audit.ActionAccept, "user", user.ID, map[string]any{
		"email": user.Email,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "convite aceito com sucesso",
		"user":    user,
	})
}
