package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/router"
)

// fakeSessions implements SessionSource.
type fakeSessions struct {
	mu      sync.Mutex
	infos   []router.SessionInfo
	pruned  int
	pruneOK int
}

func (f *fakeSessions) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.infos)
}

func (f *fakeSessions) Snapshot() []router.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]router.SessionInfo, len(f.infos))
	copy(out, f.infos)
	return out
}

func (f *fakeSessions) PruneSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	return f.pruneOK
}

// fakeMCP implements MCPStatus.
type fakeMCP struct {
	mu         sync.Mutex
	servers    []mcp.ServerStatus
	reconnects []string
	err        error
}

func (f *fakeMCP) Status() []mcp.ServerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mcp.ServerStatus(nil), f.servers...)
}

func (f *fakeMCP) Reconnect(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects = append(f.reconnects, name)
	return f.err
}

// fakeJobs implements JobRunner.
type fakeJobs struct {
	mu     sync.Mutex
	status []cron.JobStatus
	ran    []string
	err    error
}

func (f *fakeJobs) Status() []cron.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cron.JobStatus(nil), f.status...)
}

func (f *fakeJobs) RunNow(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, name)
	return f.err
}

// newTestGateway returns a provisioned gateway bound to a free port.
func newTestGateway(t *testing.T, auth AuthConfig) (*Gateway, *core.AppContext) {
	t.Helper()
	appCtx := core.NewAppContext(testLogger(), t.TempDir())

	g := &Gateway{}
	g.config = Config{
		Bind:     freeAddr(t),
		Timeouts: Timeouts{Read: 5 * time.Second, Shutdown: 2 * time.Second},
		Auth:     auth,
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return g, appCtx
}

// startTestGateway starts g and stops it when the test ends.
func startTestGateway(t *testing.T, g *Gateway) string {
	t.Helper()
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })
	return "http://" + g.config.Bind
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doRequest sends a request with an optional bearer token.
func doRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
