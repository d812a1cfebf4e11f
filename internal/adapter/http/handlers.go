package http

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/domain/report"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/middleware"
	"github.com/Strob0t/CareForge/internal/service"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit = 1 << 20

// healthTimeout bounds each dependency check of /health/ready.
const healthTimeout = 2 * time.Second

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handlers. Every API route dispatches through
// Dispatcher.
type Handlers struct {
	Dispatcher *dispatch.Dispatcher
	// BodyLimit caps JSON bodies; zero means DefaultBodyLimit.
	BodyLimit int64
	// DocumentLimit caps uploaded document bodies. Larger uploads are cut
	// off here and rejected by the document size validator.
	DocumentLimit int64
	// Checks are the dependencies reported by /health/ready, by name.
	Checks map[string]HealthCheck
	Version string
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return DefaultBodyLimit
}

type healthStatus struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Handlers     int               `json:"handlers"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /health. It reports liveness and the number of
// registered request types.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "ok", Version: h.Version, Handlers: h.Dispatcher.Len()})
}

// Ready handles GET /health/ready. It answers 503 when any dependency check
// fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:       "ok",
		Version:      h.Version,
		Handlers:     h.Dispatcher.Len(),
		Dependencies: make(map[string]string, len(h.Checks)),
	}
	code := http.StatusOK
	for name, check := range h.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			status.Dependencies[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Dependencies[name] = "ok"
	}
	writeJSON(w, code, status)
}

// Me handles GET /api/v1/auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, result.CodeUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateAPIKey handles POST /api/v1/auth/api-keys. The key is issued to the
// caller.
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	handleCommand[service.CreateAPIKey, user.CreateAPIKeyResponse](h.Dispatcher, h.bodyLimit(), http.StatusCreated,
		func(r *http.Request, req *service.CreateAPIKey) {
			if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
				req.UserID = p.UserID
			}
		})(w, r)
}

// AttachDocument handles POST /api/v1/prescriptions/{id}/documents. The body
// is the raw document; its name comes from ?name= and its type from the
// Content-Type header.
func (h *Handlers) AttachDocument(w http.ResponseWriter, r *http.Request) {
	// One byte over the limit lets the validator see an oversized document.
	data, err := io.ReadAll(io.LimitReader(r.Body, h.DocumentLimit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BODY_INVALID", "could not read document")
		return
	}
	res := dispatch.Send[document.Info](r.Context(), h.Dispatcher, service.AttachPrescriptionDocument{
		PrescriptionID: urlParam(r, "id"),
		Name:           r.URL.Query().Get("name"),
		ContentType:    r.Header.Get("Content-Type"),
		Data:           data,
	})
	if res.IsSuccess() {
		w.Header().Set("Location", "/api/v1/prescriptions/"+res.Value().PrescriptionID+"/documents/"+res.Value().ID)
	}
	writeResult(w, r, res, http.StatusCreated)
}

// GetDocument handles GET /api/v1/prescriptions/{id}/documents/{docID} and
// streams the stored content.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	res := dispatch.Send[document.Document](r.Context(), h.Dispatcher, service.GetPrescriptionDocument{
		PrescriptionID: urlParam(r, "id"),
		DocumentID:     urlParam(r, "docID"),
	})
	if res.IsFailure() {
		writeFailure(w, r, res.Err())
		return
	}
	doc := res.Value()
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// UtilizationReport handles GET /api/v1/reports/utilization?from=&to= with
// RFC 3339 dates or plain YYYY-MM-DD days.
func (h *Handlers) UtilizationReport(w http.ResponseWriter, r *http.Request) {
	from, okFrom := parseDate(r.URL.Query().Get("from"))
	to, okTo := parseDate(r.URL.Query().Get("to"))
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, service.CodeReportPeriodInvalid, "from and to must be dates")
		return
	}
	res := dispatch.Send[report.Utilization](r.Context(), h.Dispatcher, service.GenerateUtilizationReport{From: from, To: to})
	writeResult(w, r, res, http.StatusOK)
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
