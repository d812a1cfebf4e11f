package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/report"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/middleware"
	"github.com/Strob0t/CareForge/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer mounts the routes over a dispatcher built by register. Every
// request runs as principal.
func newTestServer(t *testing.T, principal *user.Principal, register func(b *dispatch.Builder), mods ...func(*Handlers)) *httptest.Server {
	t.Helper()

	b := dispatch.NewBuilder(dispatch.WithLogger(quietLogger()))
	register(b)
	d, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	h := &Handlers{Dispatcher: d, DocumentLimit: 16, Version: "test"}
	for _, m := range mods {
		m(h)
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), *principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

var adminPrincipal = &user.Principal{UserID: "u-admin", Email: "admin@localhost", Role: role.Admin}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestGetMember(t *testing.T) {
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.GetMember) result.Result[member.Member] {
			if req.ID != "m-1" {
				return result.Failure[member.Member](result.NotFound("MEMBER_NOT_FOUND", "member not found"))
			}
			return result.Success(member.Member{ID: "m-1", FirstName: "Ada"})
		})
	})

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/members/m-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decode[member.Member](t, resp); got.ID != "m-1" || got.FirstName != "Ada" {
		t.Errorf("unexpected member %+v", got)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/members/m-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := decode[errorResponse](t, resp); got.Code != "MEMBER_NOT_FOUND" {
		t.Errorf("code = %q", got.Code)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  result.Error
		want int
	}{
		{"validation", result.Validation("MEMBER_NAME_REQUIRED", "name required"), http.StatusBadRequest},
		{"not found", result.NotFound("MEMBER_NOT_FOUND", "missing"), http.StatusNotFound},
		{"conflict", result.Conflict("STALE_VERSION", "stale"), http.StatusConflict},
		{"unauthenticated", result.Unauthorized(result.CodeUnauthorized, "who are you"), http.StatusUnauthorized},
		{"forbidden", result.Unauthorized(dispatch.CodeForbiddenRole, "no"), http.StatusForbidden},
		{"not implemented", result.Unexpected(result.CodeNotImplemented, "later"), http.StatusNotImplemented},
		{"unexpected", result.Unexpected("DB_DOWN", "secret detail"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
				dispatch.Register(b, func(context.Context, service.GetPharmacy) result.Result[pharmacy.Pharmacy] {
					return result.Failure[pharmacy.Pharmacy](tt.err)
				})
			})

			resp := do(t, http.MethodGet, srv.URL+"/api/v1/pharmacies/p-1", nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body := decode[errorResponse](t, resp)
			if body.Code != tt.err.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.err.Code)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(body.Error, "secret") {
				t.Errorf("unexpected failure leaked its message: %q", body.Error)
			}
		})
	}
}

func TestStatusFor_Cancelled(t *testing.T) {
	e := result.Cancelled(context.Canceled)

	if got := statusFor(context.Background(), e); got != statusClientClosedRequest {
		t.Errorf("cancelled status = %d, want %d", got, statusClientClosedRequest)
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if got := statusFor(ctx, e); got != http.StatusGatewayTimeout {
		t.Errorf("deadline status = %d, want %d", got, http.StatusGatewayTimeout)
	}
}

func TestValidationDetails(t *testing.T) {
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(context.Context, service.CreateMember) result.Result[member.Member] {
			return result.Failure[member.Member](result.Aggregate([]result.Error{
				result.Validation("MEMBER_NAME_REQUIRED", "name required"),
				result.Validation("MEMBER_DOB_INVALID", "dob invalid"),
			}))
		})
	})

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/members", strings.NewReader(`{}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if body.Code != result.CodeValidationFailed || len(body.Details) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCommandBindsBodyAndPath(t *testing.T) {
	var got service.UpdateMember
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.UpdateMember) result.Result[member.Member] {
			got = req
			return result.Success(member.Member{ID: req.ID, Version: req.Version + 1})
		})
	})

	body := `{"id":"ignored","version":3,"first_name":"Grace","last_name":"Hopper"}`
	resp := do(t, http.MethodPut, srv.URL+"/api/v1/members/m-7", strings.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got.ID != "m-7" || got.Version != 3 || got.FirstName != "Grace" {
		t.Errorf("request not bound: %+v", got)
	}
}

func TestCommandRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(context.Context, service.CreatePharmacy) result.Result[pharmacy.Pharmacy] {
			return result.Success(pharmacy.Pharmacy{ID: "p-1"})
		})
	}, func(h *Handlers) { h.BodyLimit = 32 })

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/pharmacies", strings.NewReader(`{"name":`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed: status = %d, want 400", resp.StatusCode)
	}

	big := `{"name":"` + strings.Repeat("x", 64) + `"}`
	resp = do(t, http.MethodPost, srv.URL+"/api/v1/pharmacies", strings.NewReader(big))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: status = %d, want 413", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/pharmacies", strings.NewReader(`{"name":"Main"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("valid: status = %d, want 201", resp.StatusCode)
	}
}

func TestListEncodesEmptyAsArray(t *testing.T) {
	var page service.ListMembers
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.ListMembers) result.Result[[]member.Member] {
			page = req
			return result.Success[[]member.Member](nil)
		})
	})

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/members?limit=10&offset=x", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("body = %s, want []", raw)
	}
	if page.Limit != 10 || page.Offset != -1 {
		t.Errorf("page = %+v, want limit 10 and offset -1", page)
	}
}

func TestDeleteAnswersNoContent(t *testing.T) {
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.DeleteMember) result.Result[bool] {
			if req.ID == "busy" {
				return result.Failure[bool](result.Conflict(result.CodeConflict, "member has prescriptions"))
			}
			return result.Success(true)
		})
	})

	if resp := do(t, http.MethodDelete, srv.URL+"/api/v1/members/m-1", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/api/v1/members/busy", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRoleRoutesRequireAdmin(t *testing.T) {
	register := func(b *dispatch.Builder) {
		dispatch.Register(b, func(context.Context, service.ListRoles) result.Result[[]role.Role] {
			return result.Success([]role.Role{{ID: "role-admin", Name: role.Admin}})
		})
	}

	viewer := &user.Principal{UserID: "u-2", Role: role.Viewer}
	if resp := do(t, http.MethodGet, newTestServer(t, viewer, register).URL+"/api/v1/roles", nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("viewer: status = %d, want 403", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, newTestServer(t, nil, register).URL+"/api/v1/roles", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, newTestServer(t, adminPrincipal, register).URL+"/api/v1/roles", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", resp.StatusCode)
	}
	if got := decode[[]role.Role](t, resp); len(got) != 1 || got[0].Name != role.Admin {
		t.Errorf("unexpected roles %+v", got)
	}
}

func TestCreateAPIKeyUsesCaller(t *testing.T) {
	var got service.CreateAPIKey
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.CreateAPIKey) result.Result[user.CreateAPIKeyResponse] {
			got = req
			return result.Success(user.CreateAPIKeyResponse{})
		})
	})

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/auth/api-keys", strings.NewReader(`{"name":"ci"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got.UserID != adminPrincipal.UserID {
		t.Errorf("user id = %q, want %q", got.UserID, adminPrincipal.UserID)
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t, adminPrincipal, func(*dispatch.Builder) {})
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decode[user.Principal](t, resp); got != *adminPrincipal {
		t.Errorf("principal = %+v", got)
	}

	anon := newTestServer(t, nil, func(*dispatch.Builder) {})
	if resp := do(t, http.MethodGet, anon.URL+"/api/v1/auth/me", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", resp.StatusCode)
	}
}

func TestDocuments(t *testing.T) {
	var attached service.AttachPrescriptionDocument
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.AttachPrescriptionDocument) result.Result[document.Info] {
			attached = req
			return result.Success(document.Info{ID: "d-1", PrescriptionID: req.PrescriptionID, Name: req.Name, Size: int64(len(req.Data))})
		})
		dispatch.Register(b, func(_ context.Context, req service.GetPrescriptionDocument) result.Result[document.Document] {
			if req.DocumentID != "d-1" {
				return result.Failure[document.Document](result.NotFound("DOCUMENT_NOT_FOUND", "document not found"))
			}
			return result.Success(document.Document{
				Info: document.Info{ID: "d-1", Name: "script scan.pdf", ContentType: "application/pdf"},
				Data: []byte("%PDF-1.7"),
			})
		})
	})

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/prescriptions/rx-1/documents?name=scan.pdf", bytes.NewReader([]byte("%PDF-1.7")))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("attach: status = %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/v1/prescriptions/rx-1/documents/d-1" {
		t.Errorf("location = %q", loc)
	}
	if attached.PrescriptionID != "rx-1" || attached.Name != "scan.pdf" || string(attached.Data) != "%PDF-1.7" {
		t.Errorf("attach request = %+v", attached)
	}

	// Bodies are cut one byte past the limit so the size validator sees them.
	do(t, http.MethodPost, srv.URL+"/api/v1/prescriptions/rx-1/documents?name=big", strings.NewReader(strings.Repeat("x", 100)))
	if len(attached.Data) != 17 {
		t.Errorf("oversized body read as %d bytes, want 17", len(attached.Data))
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/prescriptions/rx-1/documents/d-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="script scan.pdf"` {
		t.Errorf("content disposition = %q", cd)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "%PDF-1.7" {
		t.Errorf("body = %q", raw)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/api/v1/prescriptions/rx-1/documents/d-2", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", resp.StatusCode)
	}
}

func TestUtilizationReport(t *testing.T) {
	var got service.GenerateUtilizationReport
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(_ context.Context, req service.GenerateUtilizationReport) result.Result[report.Utilization] {
			got = req
			return result.NotImplemented[report.Utilization]("utilization report")
		})
	})

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/reports/utilization?from=2026-01-01&to=2026-02-01T00:00:00Z", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
	if !got.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) || !got.To.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("period = %v..%v", got.From, got.To)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/reports/utilization?from=yesterday", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad dates: status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	failing := errors.New("connection refused")
	srv := newTestServer(t, adminPrincipal, func(b *dispatch.Builder) {
		dispatch.Register(b, func(context.Context, service.GetMember) result.Result[member.Member] {
			return result.Success(member.Member{})
		})
	}, func(h *Handlers) {
		h.Checks = map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"nats":     func(context.Context) error { return failing },
		}
	})

	resp := do(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status = %d", resp.StatusCode)
	}
	if got := decode[healthStatus](t, resp); got.Status != "ok" || got.Handlers != 1 {
		t.Errorf("health = %+v", got)
	}

	resp = do(t, http.MethodGet, srv.URL+"/health/ready", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready: status = %d, want 503", resp.StatusCode)
	}
	got := decode[healthStatus](t, resp)
	if got.Status != "degraded" || got.Dependencies["postgres"] != "ok" || got.Dependencies["nats"] != failing.Error() {
		t.Errorf("ready = %+v", got)
	}
}
