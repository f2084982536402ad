package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/application"
)

type setRoleBody struct {
	Role string `json:"role"`
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}
	var body setRoleBody
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, "set_role", err)
		return
	}
	err = h.service.SetUserRole(r.Context(), actor.UserID, application.SetRoleRequest{
		UserID:   targetID,
		RoleName: body.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, "set_role", err)
		return
	}
	writeMessage(w, http.StatusOK, "role updated")
}

func (h *Handler) disableUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}
	if err := h.service.DisableUser(r.Context(), actor.UserID, targetID); err != nil {
		h.writeServiceError(w, r, "disable_user", err)
		return
	}
	writeMessage(w, http.StatusOK, "user disabled")
}

type setOverrideBody struct {
	Granted bool `json:"granted"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}
	var body setOverrideBody
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, "set_override", err)
		return
	}
	err = h.service.SetOverride(r.Context(), actor.UserID, application.SetOverrideRequest{
		UserID:  targetID,
		Key:     chi.URLParam(r, "key"),
		Granted: body.Granted,
	})
	if err != nil {
		h.writeServiceError(w, r, "set_override", err)
		return
	}
	writeMessage(w, http.StatusOK, "override set")
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}
	if err := h.service.DeleteOverride(r.Context(), actor.UserID, targetID, chi.URLParam(r, "key")); err != nil {
		h.writeServiceError(w, r, "delete_override", err)
		return
	}
	writeMessage(w, http.StatusOK, "override removed")
}
