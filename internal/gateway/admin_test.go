package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgmcp/internal/core"
	"github.com/flemzord/tgmcp/internal/cron"
	"github.com/flemzord/tgmcp/internal/mcp"
	"github.com/flemzord/tgmcp/internal/provider/providertest"
	"github.com/flemzord/tgmcp/internal/router"
)

func TestAdmin_ListSessions_NewestFirst(t *testing.T) {
	t.Parallel()

	now := time.Now()
	g := &Gateway{sessions: &fakeSessions{infos: []router.SessionInfo{
		{ID: "old", LastActiveAt: now.Add(-time.Hour)},
		{ID: "new", LastActiveAt: now},
	}}}

	rr := httptest.NewRecorder()
	g.handleListSessions().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var got []router.SessionInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" {
		t.Errorf("sessions = %+v", got)
	}
}

func TestAdmin_ListSessions_NoRouter(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	rr := httptest.NewRecorder()
	g.handleListSessions().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var got []router.SessionInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("sessions = %v, want empty array", got)
	}
}

func TestAdmin_PruneSessions(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{pruneOK: 3}
	g := &Gateway{sessions: sessions, logger: testLogger()}

	rr := httptest.NewRecorder()
	g.handlePruneSessions().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/prune", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["pruned"] != 3 || sessions.pruned != 1 {
		t.Errorf("got %v, prune calls %d", got, sessions.pruned)
	}

	rr = httptest.NewRecorder()
	(&Gateway{}).handlePruneSessions().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/prune", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no router: status = %d", rr.Code)
	}
}

func TestAdmin_ListMCP(t *testing.T) {
	t.Parallel()

	g := &Gateway{mcp: &fakeMCP{servers: []mcp.ServerStatus{
		{Name: "fs", Transport: "stdio", Connected: true, Tools: []string{"read_file"}},
	}}}

	rr := httptest.NewRecorder()
	g.handleListMCP().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/mcp", nil))

	var got []mcp.ServerStatus
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "fs" || got[0].Tools[0] != "read_file" {
		t.Errorf("servers = %+v", got)
	}
}

func TestAdmin_ReconnectMCP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mcp      *fakeMCP
		wantCode int
	}{
		{"ok", &fakeMCP{}, http.StatusOK},
		{"unknown", &fakeMCP{err: fmt.Errorf("%w: ghost", mcp.ErrUnknownServer)}, http.StatusNotFound},
		{"failed", &fakeMCP{err: errors.New("exec: not found")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &Gateway{mcp: tt.mcp, logger: testLogger()}
			r := chi.NewRouter()
			r.Post("/api/mcp/{server}/reconnect", g.handleReconnectMCP())

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/mcp/fs/reconnect", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if len(tt.mcp.reconnects) != 1 || tt.mcp.reconnects[0] != "fs" {
				t.Errorf("reconnects = %v", tt.mcp.reconnects)
			}
		})
	}
}

func TestAdmin_ReconnectMCP_NoManager(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	r := chi.NewRouter()
	r.Post("/api/mcp/{server}/reconnect", g.handleReconnectMCP())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/mcp/fs/reconnect", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAdmin_ListJobs(t *testing.T) {
	t.Parallel()

	g := &Gateway{jobs: &fakeJobs{status: []cron.JobStatus{
		{Name: "session_prune", Schedule: "*/10 * * * *", Runs: 4},
		{Name: "history_trim", Schedule: cron.Disabled},
	}}}
	rr := httptest.NewRecorder()
	g.handleListJobs().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	var got []cron.JobStatus
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Name != "session_prune" || got[0].Runs != 4 {
		t.Errorf("jobs = %+v", got)
	}

	rr = httptest.NewRecorder()
	(&Gateway{}).handleListJobs().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("no scheduler body = %q, want []", body)
	}
}

func TestAdmin_RunJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		jobs     *fakeJobs
		wantCode int
	}{
		{"ok", &fakeJobs{}, http.StatusOK},
		{"unknown", &fakeJobs{err: fmt.Errorf("%w: %q", cron.ErrUnknownJob, "mcp_health")}, http.StatusNotFound},
		{"busy", &fakeJobs{err: fmt.Errorf("%w: %q", cron.ErrJobBusy, "mcp_health")}, http.StatusConflict},
		{"failed", &fakeJobs{err: errors.New("servers down: fs")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &Gateway{jobs: tt.jobs, logger: testLogger()}
			r := chi.NewRouter()
			r.Post("/api/jobs/{name}/run", g.handleRunJob())

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs/mcp_health/run", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if len(tt.jobs.ran) != 1 || tt.jobs.ran[0] != "mcp_health" {
				t.Errorf("ran = %v", tt.jobs.ran)
			}
		})
	}
}

func TestAdmin_RunJob_NoScheduler(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	(&Gateway{}).handleRunJob().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs/x/run", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestAdmin_Status(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		metrics:   NewMetrics(),
		events:    NewEventHub(4, testLogger()),
		startedAt: time.Now().Add(-time.Minute),
		sessions:  &fakeSessions{infos: []router.SessionInfo{{ID: "a"}}},
		mcp:       &fakeMCP{servers: []mcp.ServerStatus{{Name: "fs", Connected: true}}},
		provider:  &providertest.MockProvider{Model: "gpt-4o-mini"},
		version:   "v0.3.0",
	}
	g.metrics.Publish(router.Event{Type: router.EventReceived})

	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var got StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != "v0.3.0" || got.Model != "gpt-4o-mini" {
		t.Errorf("version/model = %q/%q", got.Version, got.Model)
	}
	if got.Sessions != 1 || got.MCP.Connected != 1 || got.Metrics.Received != 1 {
		t.Errorf("status = %+v", got)
	}
	if got.Uptime < time.Minute {
		t.Errorf("uptime = %v", got.Uptime)
	}
}

func TestAdmin_ListModules(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("bind: 127.0.0.1:0"), &node); err != nil {
		t.Fatal(err)
	}
	appCtx := core.NewAppContext(testLogger(), t.TempDir()).
		WithModuleConfigs(map[string]yaml.Node{ModuleID: *node.Content[0]})
	g := &Gateway{appCtx: appCtx}

	rr := httptest.NewRecorder()
	g.handleListModules().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/modules", nil))

	var got []moduleJSON
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var found bool
	for _, m := range got {
		if m.ID == ModuleID {
			found = true
			if !m.Enabled || m.Namespace != "gateway" {
				t.Errorf("gateway module = %+v", m)
			}
		}
	}
	if !found {
		t.Errorf("modules = %+v, want %s listed", got, ModuleID)
	}
}
