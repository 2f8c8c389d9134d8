package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

type errInvalidBody string

func (e errInvalidBody) Error() string { return string(e) }

func errorBody(message, requestID string) map[string]string {
	body := map[string]string{"error": message}
	if requestID != "" {
		body["request_id"] = requestID
	}
	return body
}

// writeError maps domain error kinds onto HTTP statuses. Internal detail
// stays in the log; the client sees a stable message per status class.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFromContext(r.Context())

	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		message = "request timed out"
	case domain.IsKind(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case domain.IsKind(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case domain.IsKind(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		message = "upstream rate limited"
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
		message = "temporarily unavailable"
	}

	if status >= 500 {
		s.logger.Error("request_failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(message, requestID))
}
