package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "X-Idempotent-Replay"

	// Responses over this size are served but not cached; a mutation that
	// large is cheaper to re-execute than to hold in the KV bucket.
	maxCachedResponse = 256 << 10
)

// storedResponse is the replayable shape of a completed mutation.
type storedResponse struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header"`
	Body   []byte              `json:"body"`
}

// Idempotency deduplicates mutating requests by Idempotency-Key, caching the
// first successful response in a JetStream KV bucket and replaying it for
// retries. Keys are scoped per tenant so two tenants reusing the same key
// never see each other's responses. Failed responses are not cached: the
// client is expected to retry those.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get(headerIdempotencyKey)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := scopedKey(r, clientKey)

			if entry, err := kv.Get(r.Context(), key); err == nil {
				var cached storedResponse
				if err := json.Unmarshal(entry.Value(), &cached); err == nil {
					replay(w, cached)
					return
				}
				slog.Warn("unreadable idempotency entry, re-executing", "key", key)
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.status >= 300 || cw.buf.Len() > maxCachedResponse {
				return
			}
			data, err := json.Marshal(storedResponse{
				Status: cw.status,
				Header: w.Header().Clone(),
				Body:   cw.buf.Bytes(),
			})
			if err != nil {
				return
			}
			if _, err := kv.Put(r.Context(), key, data); err != nil {
				slog.Warn("store idempotency entry", "key", key, "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached storedResponse) {
	for name, vals := range cached.Header {
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

// scopedKey namespaces the client's key under its tenant header. The raw
// header is used rather than the context value so the middleware does not
// depend on mount order relative to TenantID.
func scopedKey(r *http.Request, clientKey string) string {
	tid := r.Header.Get(headerTenantID)
	if tid == "" {
		tid = DefaultTenantID
	}
	return tid + "." + clientKey
}

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}
