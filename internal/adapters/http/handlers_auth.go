package http

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/homedash/homedash/internal/application"
	"github.com/homedash/homedash/internal/domain"
)

type initiateLoginBody struct {
	RemoteURL    string `json:"remote_url"`
	RedirectPath string `json:"redirect_path"`
}

// initiateLogin starts the authorization-code flow and redirects the browser
// to the remote instance's authorize page. Accepts either a JSON body (POST)
// or query parameters (GET) so both the SPA and plain links work.
func (h *Handler) initiateLogin(w http.ResponseWriter, r *http.Request) {
	var body initiateLoginBody
	if r.Method == http.MethodPost && r.Body != nil && r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			h.writeServiceError(w, r, "initiate_login", err)
			return
		}
	} else {
		body.RemoteURL = r.URL.Query().Get("remote_url")
		body.RedirectPath = r.URL.Query().Get("redirect_path")
	}

	resp, err := h.service.InitiateLogin(r.Context(), application.InitiateLoginRequest{
		RemoteURL:    body.RemoteURL,
		RedirectPath: body.RedirectPath,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		loginOutcomes.WithLabelValues("rejected").Inc()
		h.writeServiceError(w, r, "initiate_login", err)
		return
	}
	http.Redirect(w, r, resp.AuthorizeURL, http.StatusFound)
}

// callback finishes the flow. Provider-reported errors and state failures
// bounce back to the login page with an error marker instead of a JSON body,
// since the browser is mid-redirect.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		loginOutcomes.WithLabelValues("provider_denied").Inc()
		adapterLogger().WarnContext(r.Context(), "authorization denied by provider",
			"operation", "oauth_callback",
			"outcome", "failure",
			"provider_error", errCode,
			"request_id", requestIDFromContext(r.Context()),
		)
		h.redirectLoginError(w, r, errCode)
		return
	}

	resp, err := h.service.CompleteLogin(r.Context(), application.CompleteLoginRequest{
		Code:     query.Get("code"),
		State:    query.Get("state"),
		ClientIP: clientIP(r),
	})
	if err != nil {
		var throttled *domain.ThrottledError
		if errors.As(err, &throttled) {
			// The browser is mid-redirect, so the retry signal travels as a
			// distinct error marker instead of a Retry-After header.
			loginOutcomes.WithLabelValues("throttled").Inc()
			h.redirectLoginError(w, r, "rate_limited")
			return
		}
		loginOutcomes.WithLabelValues("failure").Inc()
		h.redirectLoginError(w, r, "login_failed")
		return
	}
	loginOutcomes.WithLabelValues("success").Inc()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    resp.SessionToken,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, resp.RedirectPath, http.StatusFound)
}

func (h *Handler) redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	target := "/login?error=" + url.QueryEscape(code)
	http.Redirect(w, r, target, http.StatusFound)
}

// logout clears the cookie and destroys the session if one exists. Always
// succeeds.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.writeServiceError(w, r, "logout", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "logged out")
}

// csrfToken issues a token bound to the current session for use in the
// X-CSRF-Token header on mutating requests.
func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	token, err := h.csrf.Issue(session.TokenHash, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, "csrf_token", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"csrf_token": token})
}
