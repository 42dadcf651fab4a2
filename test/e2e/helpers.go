package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/venuekit/turnstile/internal/devserver"
	"github.com/venuekit/turnstile/internal/multistore"
	engine "github.com/venuekit/turnstile/internal/sync"
	"github.com/venuekit/turnstile/internal/transport"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

const (
	e2eToken = "e2e-test-token"
	e2eOrg   = "org-e2e"
)

// requestRecord is one request observed by the harness, captured before
// fault injection so dropped requests are counted too.
type requestRecord struct {
	Method       string
	Path         string
	UpdatedSince string
}

// harness runs an in-process devserver and hands out engines wired to it.
// Each engine gets its own store manager so closing and reopening one
// behaves like a device restart.
type harness struct {
	srv     *httptest.Server
	handler *devserver.Handler
	state   *devserver.State
	keys    sealedbox.KeyPair

	mu       sync.Mutex
	requests []requestRecord
}

func newHarness(t *testing.T, opts devserver.SeedOptions) *harness {
	t.Helper()

	keys, err := sealedbox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	opts.OrgPublicKey = keys.Public

	state := devserver.NewState()
	if err := state.Seed(opts); err != nil {
		t.Fatalf("seed devserver: %v", err)
	}

	handler := devserver.NewHandler(state, e2eToken, "e2e")
	h := &harness{handler: handler, state: state, keys: keys}
	h.srv = httptest.NewServer(h.record(devserver.NewRouter(handler)))
	t.Cleanup(h.srv.Close)
	return h
}

// record observes every request before it reaches the router.
func (h *harness) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, requestRecord{
			Method:       r.Method,
			Path:         r.URL.Path,
			UpdatedSince: r.URL.Query().Get("updatedSince"),
		})
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// requestsSince returns observed requests from index start onward.
func (h *harness) requestsSince(start int) []requestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]requestRecord(nil), h.requests[start:]...)
}

func (h *harness) requestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

// newEngine opens an engine for shop backed by a store manager rooted at
// dataDir. Reusing the same dataDir across calls models a device restart.
func (h *harness) newEngine(t *testing.T, shop, dataDir string) *engine.Engine {
	t.Helper()
	return h.newEngineWithKeys(t, shop, dataDir, h.keys)
}

// newEngineWithKeys is newEngine with an explicit organization key pair.
func (h *harness) newEngineWithKeys(t *testing.T, shop, dataDir string, keys sealedbox.KeyPair) *engine.Engine {
	t.Helper()

	mgr, err := multistore.NewStoreManager(dataDir)
	if err != nil {
		t.Fatalf("create store manager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	eng, err := engine.New(context.Background(), engine.Config{
		Session: engine.Session{
			Shop:         shop,
			Organization: e2eOrg,
			Client:       transport.New(h.srv.URL, e2eToken, h.srv.Client()),
			KeyPair:      keys,
		},
		Stores: mgr,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

// drainOutbox flushes until the pending queue is empty. Flush is a no-op
// when a background attempt already holds the flush lock, so one call is
// not guaranteed to drain.
func drainOutbox(t *testing.T, ctx context.Context, eng *engine.Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := eng.Flush(ctx); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		pending, err := eng.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending() error = %v", err)
		}
		if len(pending) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox still holds %d patches", len(pending))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
