package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homedash/homedash/internal/application"
	"github.com/homedash/homedash/internal/domain"
)

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	profile, err := h.service.Profile(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, "me", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"user_id":       profile.UserID.String(),
		"display_name":  profile.DisplayName,
		"role":          profile.RoleName,
		"person_entity": profile.PersonEntity,
		"remote_url":    profile.RemoteURL,
		"permissions":   profile.Permissions,
	})
}

func (h *Handler) runtimeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.RuntimeConfigSnapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "runtime_config", err)
		return
	}
	writeSuccess(w, http.StatusOK, cfg)
}

// token hands the frontend a usable Home Assistant access token, refreshing
// it upstream first when it is about to expire.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	pair, err := h.service.EnsureFreshToken(r.Context(), user.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialUnavailable) {
			tokenRefreshes.WithLabelValues("rejected").Inc()
		} else {
			tokenRefreshes.WithLabelValues("failure").Inc()
		}
		h.writeServiceError(w, r, "token", err)
		return
	}
	tokenRefreshes.WithLabelValues("success").Inc()
	payload := map[string]any{
		"access_token": pair.AccessToken,
	}
	if pair.ExpiresAt != nil {
		payload["expires_at"] = pair.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	session, _ := sessionFromContext(r.Context())
	sessions, err := h.service.ListSessions(r.Context(), user.UserID, session.SessionID)
	if err != nil {
		h.writeServiceError(w, r, "list_sessions", err)
		return
	}
	items := make([]map[string]any, 0, len(sessions))
	for _, item := range sessions {
		items = append(items, map[string]any{
			"session_id":   item.SessionID.String(),
			"created_at":   item.CreatedAt.UTC().Format(time.RFC3339),
			"last_seen_at": item.LastSeenAt.UTC().Format(time.RFC3339),
			"expires_at":   item.ExpiresAt.UTC().Format(time.RFC3339),
			"current":      item.Current,
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": items})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session id")
		return
	}
	if err := h.service.RevokeSession(r.Context(), user.UserID, sessionID); err != nil {
		h.writeServiceError(w, r, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "session revoked")
}

type putCredentialBody struct {
	Secret string `json:"secret"`
}

func (h *Handler) putCredential(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var body putCredentialBody
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, "put_credential", err)
		return
	}
	err := h.service.PutCredential(r.Context(), user.UserID, application.PutCredentialRequest{
		UserID: user.UserID,
		Kind:   chi.URLParam(r, "kind"),
		Secret: body.Secret,
	})
	if err != nil {
		h.writeServiceError(w, r, "put_credential", err)
		return
	}
	writeMessage(w, http.StatusOK, "credential stored")
}

func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	kind := domain.CredentialKind(chi.URLParam(r, "kind"))
	if err := h.service.DeleteCredential(r.Context(), user.UserID, user.UserID, kind); err != nil {
		h.writeServiceError(w, r, "delete_credential", err)
		return
	}
	writeMessage(w, http.StatusOK, "credential deleted")
}
