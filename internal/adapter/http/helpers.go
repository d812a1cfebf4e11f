package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CareForge/internal/domain/result"
)

// statusClientClosedRequest is the non-standard status for requests whose
// caller went away before the outcome was ready.
const statusClientClosedRequest = 499

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit. An empty body
// decodes to the zero value.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "BODY_INVALID", "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// queryInt parses an optional integer query parameter. A malformed value is
// reported as -1 so that the request validators reject it.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details []result.Error `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeResult writes a successful outcome with status, or maps the failure
// onto an HTTP status.
func writeResult[T any](w http.ResponseWriter, r *http.Request, res result.Result[T], status int) {
	if res.IsFailure() {
		writeFailure(w, r, res.Err())
		return
	}
	writeJSON(w, status, res.Value())
}

// writeFailure maps an outcome error onto a response. Unexpected failures
// are logged and their message is not exposed.
func writeFailure(w http.ResponseWriter, r *http.Request, e result.Error) {
	status := statusFor(r.Context(), e)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "code", e.Code, "error", e.Message)
		writeError(w, status, e.Code, "internal server error")
		return
	}
	writeJSON(w, status, errorResponse{Error: e.Message, Code: e.Code, Details: e.Details})
}

func statusFor(ctx context.Context, e result.Error) int {
	switch e.Kind {
	case result.KindValidation:
		return http.StatusBadRequest
	case result.KindNotFound:
		return http.StatusNotFound
	case result.KindConflict:
		return http.StatusConflict
	case result.KindUnauthorized:
		if e.Code == result.CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case result.KindCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return statusClientClosedRequest
	default:
		if e.Code == result.CodeNotImplemented {
			return http.StatusNotImplemented
		}
		return http.StatusInternalServerError
	}
}

// nonNil turns a nil slice into an empty one so lists encode as [].
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
