package http

import (
	"net/http"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/result"
)

// ---------------------------------------------------------------------------
// Generic dispatch handler factories
// ---------------------------------------------------------------------------

// handleQuery creates a handler that builds a request from the URL,
// dispatches it and writes the outcome as JSON.
func handleQuery[Req dispatch.Request[R], R any](d *dispatch.Dispatcher, build func(r *http.Request) Req) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, dispatch.Send[R](r.Context(), d, build(r)), http.StatusOK)
	}
}

// handleList is handleQuery for list results; an empty list encodes as [].
func handleList[Req dispatch.Request[[]T], T any](d *dispatch.Dispatcher, build func(r *http.Request) Req) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := dispatch.Send[[]T](r.Context(), d, build(r))
		writeResult(w, r, result.Map(res, nonNil[T]), http.StatusOK)
	}
}

// handleCommand creates a handler that decodes a JSON body into Req, lets
// bind copy URL values into it, dispatches it and writes the outcome with
// status.
func handleCommand[Req dispatch.Request[R], R any](d *dispatch.Dispatcher, bodyLimit int64, status int, bind func(r *http.Request, req *Req)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		if bind != nil {
			bind(r, &req)
		}
		writeResult(w, r, dispatch.Send[R](r.Context(), d, req), status)
	}
}

// handleDelete creates a handler for requests that succeed with true and
// answers 204 No Content.
func handleDelete[Req dispatch.Request[bool]](d *dispatch.Dispatcher, build func(r *http.Request) Req) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := dispatch.Send[bool](r.Context(), d, build(r))
		if res.IsFailure() {
			writeFailure(w, r, res.Err())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
