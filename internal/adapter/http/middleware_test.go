package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/members/m-1", http.NoBody))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, handler not reached", rec.Code)
	}
	want := map[string]string{
		"Cache-Control":           "no-store",
		"Content-Security-Policy": contentSecurityPolicy,
		"Referrer-Policy":         "no-referrer",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if !strings.HasPrefix(contentSecurityPolicy, "default-src 'none'") {
		t.Errorf("policy must deny by default: %q", contentSecurityPolicy)
	}
}

func TestCORS_Preflight(t *testing.T) {
	reached := false
	h := CORS("https://portal.pharmacy.example")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/prescriptions", http.NoBody))

	if rec.Code != http.StatusNoContent || reached {
		t.Fatalf("preflight: status %d, handler reached %v", rec.Code, reached)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.pharmacy.example" {
		t.Errorf("allow origin = %q", got)
	}
	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"Authorization", "X-API-Key", "Idempotency-Key", "X-Request-ID"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("allow headers %q missing %s", allowed, h)
		}
	}
	if rec.Header().Get("Access-Control-Max-Age") == "" {
		t.Error("preflight should be cacheable")
	}
}

func TestCORS_ExposesCareforgeHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS("https://portal.pharmacy.example")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/members", http.NoBody))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"Idempotent-Replayed", "Retry-After", "X-Request-ID"} {
		if !strings.Contains(exposed, h) {
			t.Errorf("expose headers %q missing %s", exposed, h)
		}
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Errorf("Vary = %q", rec.Header().Get("Vary"))
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "" {
		t.Error("allow methods belong on preflight responses only")
	}
}

func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantLevel string
		wantCode  float64
		wantBytes float64
	}{
		{"created", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"m-1"}`))
		}, "INFO", 201, 12},
		{"implicit ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("[]")) }, "INFO", 200, 2},
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }, "WARN", 404, 0},
		{"unavailable", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }, "ERROR", 503, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefaultLog(t)
			Logger(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/members", http.NoBody))

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode %q: %v", buf.String(), err)
			}
			if rec["level"] != tt.wantLevel || rec["status"] != tt.wantCode || rec["bytes"] != tt.wantBytes {
				t.Errorf("record = %v", rec)
			}
			if rec["path"] != "/api/v1/members" || rec["method"] != http.MethodGet {
				t.Errorf("record = %v", rec)
			}
		})
	}
}

// hijackableRecorder adds http.Hijacker to a ResponseRecorder, as a real
// HTTP/1 connection offers for the /ws upgrade.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLogger_KeepsWebSocketUpgradePossible(t *testing.T) {
	captureDefaultLog(t)
	inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}

	Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer lost http.Hijacker")
		}
		_, _, _ = hj.Hijack()
	})).ServeHTTP(inner, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))

	if !inner.hijacked {
		t.Error("Hijack did not reach the connection")
	}
}

func TestTimeout_ReadsCurrentValuePerRequest(t *testing.T) {
	var limit atomic.Int64
	limit.Store(int64(20 * time.Millisecond))
	var remaining atomic.Int64

	h := Timeout(func() time.Duration { return time.Duration(limit.Load()) })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("request has no deadline")
			return
		}
		remaining.Store(int64(time.Until(deadline)))
		if time.Until(deadline) < time.Second {
			<-r.Context().Done()
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", http.NoBody))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 after the short timeout", rec.Code)
	}

	limit.Store(int64(time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if time.Duration(remaining.Load()) < 30*time.Minute {
		t.Errorf("deadline in %v, want the reloaded hour", time.Duration(remaining.Load()))
	}
}
