package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"devscope/internal/health"
	"devscope/internal/process"
	"devscope/internal/state"
)

// InventoryProvider is the read surface over the reconciliation engines.
type InventoryProvider interface {
	Servers() []state.Entity
	Scripts() []state.Entity
	TriggerScan(ctx context.Context)
}

// HealthProvider is the read surface over the health prober.
type HealthProvider interface {
	Records() []health.Record
}

type handler struct {
	inv InventoryProvider
	hp  HealthProvider
}

func newHandler(inv InventoryProvider, hp HealthProvider) *handler {
	return &handler{inv: inv, hp: hp}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// serverJSON is the wire shape of a server entity.
type serverJSON struct {
	Key        string    `json:"key"`
	PID        int32     `json:"pid"`
	Port       int       `json:"port"`
	Protocol   string    `json:"protocol"`
	Name       string    `json:"name"`
	Cmdline    string    `json:"cmdline,omitempty"`
	CWD        string    `json:"cwd,omitempty"`
	Framework  string    `json:"framework,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	CPUHistory []float64 `json:"cpu_history,omitempty"`
}

type scriptJSON struct {
	Key        string    `json:"key"`
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	Script     string    `json:"script,omitempty"`
	Cmdline    string    `json:"cmdline,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
}

type healthJSON struct {
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	RTTMillis int64     `json:"rtt_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encoding JSON response: %v", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error, message string) {
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Message: message})
}

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, successResponse{Status: "ok"})
}

func (h *handler) getServers(w http.ResponseWriter, r *http.Request) {
	entities := h.inv.Servers()
	out := make([]serverJSON, 0, len(entities))
	for _, e := range entities {
		s := serverJSON{
			Key:        e.Key,
			PID:        e.PID,
			Port:       e.Port,
			Protocol:   e.Protocol,
			Name:       e.Name,
			Cmdline:    e.Cmdline,
			CWD:        e.CWD,
			Framework:  e.Framework,
			FirstSeen:  e.FirstSeen,
			LastSeen:   e.LastSeen,
			CPUPercent: e.CPUPercent,
			MemoryRSS:  e.MemoryRSS,
		}
		if e.CPUHistory != nil {
			s.CPUHistory = e.CPUHistory.Values()
		}
		out = append(out, s)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) getScripts(w http.ResponseWriter, r *http.Request) {
	entities := h.inv.Scripts()
	out := make([]scriptJSON, 0, len(entities))
	for _, e := range entities {
		out = append(out, scriptJSON{
			Key:        e.Key,
			PID:        e.PID,
			Name:       e.Name,
			Script:     e.ScriptName,
			Cmdline:    e.Cmdline,
			FirstSeen:  e.FirstSeen,
			LastSeen:   e.LastSeen,
			CPUPercent: e.CPUPercent,
			MemoryRSS:  e.MemoryRSS,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) getHealthChecks(w http.ResponseWriter, r *http.Request) {
	records := h.hp.Records()
	out := make([]healthJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, healthJSON{
			Key:       rec.Key,
			Status:    string(rec.Status),
			RTTMillis: rec.RTT.Milliseconds(),
			Error:     rec.Error,
			CheckedAt: rec.CheckedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) triggerScan(w http.ResponseWriter, r *http.Request) {
	h.inv.TriggerScan(r.Context())
	h.writeJSON(w, http.StatusOK, successResponse{Status: "scanned"})
}

// killProcess terminates a process, but only one the inventory currently
// tracks; arbitrary pids are rejected.
func (h *handler) killProcess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pid, err := strconv.Atoi(vars["pid"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err, "invalid pid")
		return
	}

	if !h.tracked(int32(pid)) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{
			Error:   "not tracked",
			Message: "pid " + vars["pid"] + " is not a tracked entity",
		})
		return
	}

	if err := process.Terminate(pid); err != nil {
		if process.IsNoSuchProcess(err) {
			h.writeJSON(w, http.StatusOK, successResponse{Status: "already exited"})
			return
		}
		h.writeError(w, http.StatusInternalServerError, err, "failed to terminate process")
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{
		Status:  "terminated",
		Message: "sent SIGTERM to pid " + vars["pid"],
	})
}

func (h *handler) tracked(pid int32) bool {
	for _, e := range h.inv.Servers() {
		if e.PID == pid {
			return true
		}
	}
	for _, e := range h.inv.Scripts() {
		if e.PID == pid {
			return true
		}
	}
	return false
}
