package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/homedash/homedash/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var throttled *domain.ThrottledError
	if errors.As(err, &throttled) {
		writeThrottled(w, throttled.RetryAfter)
		return
	}
	status, code, msg := mapDomainError(err)
	logOperationFailure(r.Context(), operation, status, code, err)
	writeError(w, status, code, msg)
}
