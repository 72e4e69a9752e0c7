package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxFlows caps the number of tracked callers so an address scan cannot
// grow the map without bound.
const maxFlows = 50000

// Throttle applies token-bucket admission per caller. Requests carrying an
// X-Tenant-ID header share one bucket per tenant, so a noisy fleet cannot
// starve the control plane for everyone else; untenanted traffic falls back
// to a per-address bucket.
type Throttle struct {
	mu    sync.Mutex
	flows map[string]*flow
	rps   float64
	burst float64
}

type flow struct {
	level    float64
	refilled time.Time
	touched  time.Time
}

// NewThrottle creates a throttle sustaining rps requests per second per
// caller with the given burst headroom.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		flows: make(map[string]*flow),
		rps:   rps,
		burst: float64(burst),
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		left, wait, ok := t.take(callerKey(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(t.burst)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))

		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take draws one token from the caller's bucket. It reports the tokens left,
// the seconds until the next token when rejected, and whether the draw
// succeeded.
func (t *Throttle) take(key string) (left int, wait float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	f := t.flows[key]
	if f == nil {
		if len(t.flows) >= maxFlows {
			// At capacity new callers are shed rather than evicting
			// an active bucket.
			return 0, 1 / t.rps, false
		}
		f = &flow{level: t.burst, refilled: now}
		t.flows[key] = f
	}

	f.level = math.Min(t.burst, f.level+now.Sub(f.refilled).Seconds()*t.rps)
	f.refilled = now
	f.touched = now

	if f.level < 1 {
		return 0, (1 - f.level) / t.rps, false
	}
	f.level--
	return int(f.level), 0, true
}

// StartReaper drops buckets idle longer than idleFor, checking every
// interval. The returned stop function ends the reaper goroutine.
func (t *Throttle) StartReaper(interval, idleFor time.Duration) func() {
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				t.reap(time.Now().Add(-idleFor))
			}
		}
	}()
	return stop
}

func (t *Throttle) reap(cutoff time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, f := range t.flows {
		if f.touched.Before(cutoff) {
			delete(t.flows, key)
		}
	}
}

// Tracked reports the number of live buckets.
func (t *Throttle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// callerKey buckets by tenant when the header is present, else by remote
// address. Forwarding headers are ignored: they are caller-controlled and
// would let a client mint fresh buckets at will.
func callerKey(r *http.Request) string {
	if tid := r.Header.Get(headerTenantID); tid != "" {
		return "tenant:" + tid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}
