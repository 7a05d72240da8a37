package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devscope/internal/health"
	"devscope/internal/metrics"
	"devscope/internal/state"
)

type fakeInventory struct {
	servers   []state.Entity
	scripts   []state.Entity
	scanCalls int
}

func (f *fakeInventory) Servers() []state.Entity         { return f.servers }
func (f *fakeInventory) Scripts() []state.Entity         { return f.scripts }
func (f *fakeInventory) TriggerScan(ctx context.Context) { f.scanCalls++ }

type fakeHealth struct {
	records []health.Record
}

func (f *fakeHealth) Records() []health.Record { return f.records }

func newTestServer(inv InventoryProvider, hp HealthProvider) *httptest.Server {
	return httptest.NewServer(NewRouter(inv, hp))
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(&fakeInventory{}, &fakeHealth{})
	defer srv.Close()

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestGetServers(t *testing.T) {
	hist := metrics.NewHistory()
	hist.Push(1.5)
	hist.Push(2.5)

	inv := &fakeInventory{
		servers: []state.Entity{
			{
				Key:        "1234:3000",
				Class:      state.ClassServer,
				PID:        1234,
				Port:       3000,
				Protocol:   "tcp",
				Name:       "node",
				Framework:  "Next.js",
				CWD:        "/home/dev/app",
				CPUPercent: 2.5,
				MemoryRSS:  1 << 20,
				CPUHistory: hist,
			},
		},
	}
	srv := newTestServer(inv, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/servers")
	if err != nil {
		t.Fatalf("GET /api/servers: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var got []serverJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d servers, want 1", len(got))
	}
	s := got[0]
	if s.Key != "1234:3000" || s.Port != 3000 || s.Framework != "Next.js" {
		t.Errorf("unexpected server payload: %+v", s)
	}
	if len(s.CPUHistory) != 2 || s.CPUHistory[0] != 1.5 {
		t.Errorf("CPUHistory = %v, want [1.5 2.5]", s.CPUHistory)
	}
}

func TestGetServers_Empty(t *testing.T) {
	srv := newTestServer(&fakeInventory{}, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/servers")
	if err != nil {
		t.Fatalf("GET /api/servers: %v", err)
	}
	defer resp.Body.Close()

	var got []serverJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	// Empty inventory must serialize as [] rather than null.
	if got == nil {
		t.Error("empty inventory decoded as nil, want empty slice")
	}
}

func TestGetScripts(t *testing.T) {
	inv := &fakeInventory{
		scripts: []state.Entity{
			{Key: "42", Class: state.ClassScript, PID: 42, Name: "node", ScriptName: "worker.js"},
		},
	}
	srv := newTestServer(inv, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/scripts")
	if err != nil {
		t.Fatalf("GET /api/scripts: %v", err)
	}
	defer resp.Body.Close()

	var got []scriptJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].Script != "worker.js" {
		t.Errorf("unexpected scripts payload: %+v", got)
	}
}

func TestGetHealthChecks(t *testing.T) {
	hp := &fakeHealth{
		records: []health.Record{
			{Key: "1234:3000", Status: health.StatusHealthy, RTT: 120 * time.Millisecond, CheckedAt: time.Now()},
			{Key: "99:8080", Status: health.StatusDown, Error: "connection refused", CheckedAt: time.Now()},
		},
	}
	srv := newTestServer(&fakeInventory{}, hp)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/healthchecks")
	if err != nil {
		t.Fatalf("GET /api/healthchecks: %v", err)
	}
	defer resp.Body.Close()

	var got []healthJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Status != "healthy" || got[0].RTTMillis != 120 {
		t.Errorf("unexpected record: %+v", got[0])
	}
	if got[1].Status != "down" || got[1].Error != "connection refused" {
		t.Errorf("unexpected record: %+v", got[1])
	}
}

func TestTriggerScan(t *testing.T) {
	inv := &fakeInventory{}
	srv := newTestServer(inv, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/scan", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/scan: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if inv.scanCalls != 1 {
		t.Errorf("scanCalls = %d, want 1", inv.scanCalls)
	}
}

func TestKillProcess_NotTracked(t *testing.T) {
	srv := newTestServer(&fakeInventory{}, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/processes/999999/kill", "application/json", nil)
	if err != nil {
		t.Fatalf("POST kill: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestKillProcess_NonNumericPID(t *testing.T) {
	srv := newTestServer(&fakeInventory{}, &fakeHealth{})
	defer srv.Close()

	// The route pattern only matches digits, so this falls through to 404.
	resp, err := http.Post(srv.URL+"/api/processes/abc/kill", "application/json", nil)
	if err != nil {
		t.Fatalf("POST kill: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeInventory{}, &fakeHealth{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/servers", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/servers: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
