package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/CareForge/internal/port/notifier"
)

var _ notifier.Notifier = (*Notifier)(nil)

func TestRegistered(t *testing.T) {
	n, err := notifier.New("slack", "https://hooks.slack.example/x")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	err := NewNotifier("").Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendSuccess(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{
		Title:   "Prescription rejected",
		Message: "rx-1 for member m-1",
		Level:   notifier.LevelWarning,
		Source:  "prescriptions.status",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(got.Blocks))
	}
	if got.Blocks[0].Text.Text != "[WARN] Prescription rejected" {
		t.Errorf("header = %q", got.Blocks[0].Text.Text)
	}
	if got.Blocks[2].Elements[0].Text != "_Source: prescriptions.status_" {
		t.Errorf("context = %q", got.Blocks[2].Elements[0].Text)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{Title: "Test", Level: notifier.LevelInfo})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
