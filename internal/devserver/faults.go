package devserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Faults injects failures into the API for resilience testing: added
// latency, forced 5xx answers, and dropped connections. The zero value
// injects nothing.
type Faults struct {
	mu      sync.Mutex
	latency time.Duration
	fail    int
	drop    int
}

// SetLatency delays every subsequent request by d. Zero disables.
func (f *Faults) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// FailNext makes the next n requests answer 503.
func (f *Faults) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = n
}

// DropNext makes the next n requests close the connection without a
// response, so clients see a transport-level failure rather than a status.
func (f *Faults) DropNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drop = n
}

// take consumes one request's worth of injection decisions.
func (f *Faults) take() (latency time.Duration, fail, drop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latency = f.latency
	if f.drop > 0 {
		f.drop--
		return latency, false, true
	}
	if f.fail > 0 {
		f.fail--
		return latency, true, false
	}
	return latency, false, false
}

// Middleware applies the configured fault injection to each request.
func (f *Faults) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		latency, fail, drop := f.take()
		if latency > 0 {
			time.Sleep(latency)
		}
		if drop {
			hj, ok := w.(http.Hijacker)
			if !ok {
				slog.Warn("connection drop requested but writer is not hijackable")
				WriteProblem(w, r, http.StatusServiceUnavailable, "Injected failure")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		if fail {
			WriteProblem(w, r, http.StatusServiceUnavailable, "Injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}
