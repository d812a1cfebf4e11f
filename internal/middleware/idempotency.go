package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20 // 1 MB

	// idempotencyLease is how long a reservation blocks other requests with
	// the same key before it is considered abandoned.
	idempotencyLease = 5 * time.Minute

	// CodeIdempotencyKeyReused answers a key replayed with a different body.
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
	// CodeIdempotencyInFlight answers a key whose first request is still running.
	CodeIdempotencyInFlight = "IDEMPOTENCY_KEY_IN_FLIGHT"
)

// idempotencyEntry is either a reservation (Pending) held while the first
// request runs, or the completed response replayed to later requests.
type idempotencyEntry struct {
	RequestHash string              `json:"request_hash"`
	Pending     bool                `json:"pending,omitempty"`
	ReservedAt  time.Time           `json:"reserved_at,omitzero"`
	StatusCode  int                 `json:"status_code,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
}

// Idempotency returns middleware that replays the stored response for a
// repeated mutating request carrying the same Idempotency-Key. Keys are
// scoped to the caller, method and path, and stored in a NATS KV bucket
// whose TTL bounds how long a key is remembered.
//
// The key is reserved with an atomic create before the handler runs, so a
// concurrent request with the same key gets 409 instead of running the
// mutation twice. A key reused with a different body is rejected with 422.
// Server errors release the reservation so that a retry can succeed.
// Requests with bodies over 1 MB (document uploads) bypass the middleware.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := r.Header.Get(headerIdempotencyKey)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody+1))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			if err != nil || len(body) > maxIdempotencyBody {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := scopedKey(r, clientKey)
			fingerprint := sha256.Sum256(body)
			requestHash := hex.EncodeToString(fingerprint[:])

			proceed, claimed := reserve(w, r, kv, key, requestHash)
			if !proceed {
				return
			}
			if !claimed {
				next.ServeHTTP(w, r)
				return
			}

			stored := false
			defer func() {
				if stored {
					return
				}
				if err := kv.Delete(context.WithoutCancel(ctx), key); err != nil {
					slog.WarnContext(ctx, "idempotency: failed to release key", "key", key, "error", err)
				}
			}()

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				RequestHash: requestHash,
				StatusCode:  rec.statusCode,
				Headers:     replayHeaders(w.Header()),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if _, err := kv.Put(context.WithoutCancel(ctx), key, data); err != nil {
				slog.WarnContext(ctx, "idempotency: failed to store response", "key", key, "error", err)
				return
			}
			stored = true
		})
	}
}

// reserve claims key for the current request. proceed is false when a
// response has already been written (replay, key reuse, or in flight).
// claimed is false when the store is unavailable and the request runs
// without idempotency.
func reserve(w http.ResponseWriter, r *http.Request, kv jetstream.KeyValue, key, requestHash string) (proceed, claimed bool) {
	ctx := r.Context()
	marker, err := json.Marshal(idempotencyEntry{RequestHash: requestHash, Pending: true, ReservedAt: time.Now().UTC()})
	if err != nil {
		return true, false
	}

	_, err = kv.Create(ctx, key, marker)
	if err == nil {
		return true, true
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		slog.WarnContext(ctx, "idempotency: failed to reserve key", "key", key, "error", err)
		return true, false
	}

	entry, err := kv.Get(ctx, key)
	if err != nil {
		// Released or expired between the create and the read.
		writeInFlight(w)
		return false, false
	}

	var cached idempotencyEntry
	if err := json.Unmarshal(entry.Value(), &cached); err != nil {
		slog.WarnContext(ctx, "idempotency: corrupt cache entry", "key", key)
		return takeOver(w, r, kv, key, marker, entry.Revision())
	}
	if cached.RequestHash != requestHash {
		writeError(w, http.StatusUnprocessableEntity, CodeIdempotencyKeyReused,
			"Idempotency-Key was already used with a different request body")
		return false, false
	}
	if cached.Pending {
		if time.Since(cached.ReservedAt) > idempotencyLease {
			return takeOver(w, r, kv, key, marker, entry.Revision())
		}
		writeInFlight(w)
		return false, false
	}

	for k, vals := range cached.Headers {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return false, false
}

// takeOver replaces an abandoned or unreadable entry, provided nobody else
// replaced it first.
func takeOver(w http.ResponseWriter, r *http.Request, kv jetstream.KeyValue, key string, marker []byte, revision uint64) (proceed, claimed bool) {
	if _, err := kv.Update(r.Context(), key, marker, revision); err != nil {
		writeInFlight(w)
		return false, false
	}
	return true, true
}

func writeInFlight(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusConflict, CodeIdempotencyInFlight,
		"a request with this Idempotency-Key is still being processed")
}

// scopedKey derives the KV key. NATS KV keys may not contain arbitrary
// characters, so the parts are hashed.
func scopedKey(r *http.Request, clientKey string) string {
	caller := "anonymous"
	if p, ok := PrincipalFromContext(r.Context()); ok {
		caller = p.UserID
	}
	sum := sha256.Sum256([]byte(caller + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + clientKey))
	return hex.EncodeToString(sum[:])
}

// replayHeaders keeps the headers worth replaying. Per-request headers such
// as X-Request-ID and rate limit counters are dropped.
func replayHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string)
	for _, k := range []string{"Content-Type", "Location"} {
		if v := h.Values(k); len(v) > 0 {
			out[k] = v
		}
	}
	return out
}

// responseRecorder tees the response into a buffer.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
