// Package engine implements the reconciliation engines that turn raw OS
// snapshots into a stable set of tracked entities with change events.
//
// One engine instance tracks servers (listening sockets), another tracks
// script-style processes. Each runs one full cycle per timer tick:
// list -> diff -> enrich -> emit. The entity map is owned by the engine
// and mutated only inside a cycle; consumers see deep-copied snapshots.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"devscope/internal/config"
	"devscope/internal/metrics"
	"devscope/internal/procmeta"
	"devscope/internal/state"
)

// Observation is one raw sighting from a lister, before reconciliation.
type Observation struct {
	Key      string
	PID      int32
	Port     int
	Protocol string

	// Script listers already read the command line to recognize scripts,
	// so they carry these along; server listers leave them empty and the
	// resolver fills them in.
	Name       string
	Cmdline    string
	Exe        string
	ScriptName string
}

// ListFunc produces the current raw observations for one entity class.
type ListFunc func(ctx context.Context, cfg config.ScanConfig) ([]Observation, error)

// MetaResolver resolves display metadata for a batch of pids.
type MetaResolver interface {
	Resolve(ctx context.Context, pids []int32, withCWD bool) map[int32]procmeta.Metadata
}

// MetricSampler reads current resource usage for one pid.
type MetricSampler interface {
	Sample(ctx context.Context, pid int32) (metrics.Sample, error)
}

// Engine reconciles one entity class. Construct with NewServerEngine or
// NewScriptEngine.
type Engine struct {
	class    state.Class
	cfgFn    func() config.ScanConfig
	interval func(config.ScanConfig) time.Duration
	list     ListFunc
	resolver MetaResolver
	sampler  MetricSampler

	now func() time.Time // swappable in tests

	mu        sync.Mutex
	entities  map[string]*state.Entity
	listeners []state.Listener
	stopCh    chan struct{}

	// inFlight serializes cycles: a timer tick or manual trigger that
	// arrives while a cycle is still running is skipped, not queued. The
	// next tick re-reads the full OS state anyway.
	inFlight atomic.Bool
}

func newEngine(class state.Class, cfgFn func() config.ScanConfig, interval func(config.ScanConfig) time.Duration, list ListFunc, resolver MetaResolver, sampler MetricSampler) *Engine {
	return &Engine{
		class:    class,
		cfgFn:    cfgFn,
		interval: interval,
		list:     list,
		resolver: resolver,
		sampler:  sampler,
		now:      time.Now,
		entities: make(map[string]*state.Entity),
	}
}

func (e *Engine) Class() state.Class {
	return e.class
}

// OnEvent registers a listener for the engine's four event channels.
// Listeners are invoked synchronously outside the engine lock.
func (e *Engine) OnEvent(fn state.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Start begins the periodic scan loop. It is idempotent: an already
// running loop is stopped before the new one starts. The interval is
// re-read from config after every cycle, so interval edits take effect
// on the next tick.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh != nil {
		close(e.stopCh)
	}
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.mu.Unlock()

	go e.loop(ctx, stopCh)
}

// Stop prevents future cycles from starting. An in-flight cycle is not
// aborted; it finishes on its own.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
}

func (e *Engine) loop(ctx context.Context, stopCh chan struct{}) {
	timer := time.NewTimer(e.interval(e.cfgFn()))
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			e.runCycle(ctx)
			timer.Reset(e.interval(e.cfgFn()))
		}
	}
}

// TriggerScan runs one cycle immediately, outside the timer cadence. It
// shares all reconciliation logic with the timer-driven path, including
// the single-flight guard.
func (e *Engine) TriggerScan(ctx context.Context) {
	e.runCycle(ctx)
}

// Snapshot returns the current live entities, deep-copied and sorted
// (servers by port ascending, scripts by script name).
func (e *Engine) Snapshot() []state.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []state.Entity {
	out := make([]state.Entity, 0, len(e.entities))
	for _, ent := range e.entities {
		out = append(out, ent.Snapshot())
	}
	if e.class == state.ClassServer {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Port != out[j].Port {
				return out[i].Port < out[j].Port
			}
			return out[i].PID < out[j].PID
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			ni, nj := out[i].ScriptName, out[j].ScriptName
			if ni == "" {
				ni = out[i].Name
			}
			if nj == "" {
				nj = out[j].Name
			}
			if ni != nj {
				return ni < nj
			}
			return out[i].PID < out[j].PID
		})
	}
	return out
}

func (e *Engine) runCycle(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return // previous cycle still running, skip this tick
	}
	defer e.inFlight.Store(false)

	for _, ev := range e.cycle(ctx) {
		e.emit(ev)
	}
}

// cycle runs one reconciliation pass and returns the events to deliver,
// in order: new entities, stopped entities, then the update snapshot.
// Any failure, including a panic, becomes a single error event; state
// mutations completed before the failure are kept.
func (e *Engine) cycle(ctx context.Context) (events []state.Event) {
	defer func() {
		if r := recover(); r != nil {
			events = append(events, state.Event{
				Kind: state.EventError,
				Err:  fmt.Errorf("%s cycle panic: %v", e.class, r),
			})
		}
	}()

	cfg := e.cfgFn()
	grace := 2 * e.interval(cfg)

	observations, err := e.list(ctx, cfg)
	if err != nil {
		return []state.Event{{
			Kind: state.EventError,
			Err:  fmt.Errorf("%s enumeration: %w", e.class, err),
		}}
	}

	now := e.now()

	e.mu.Lock()

	var newKeys []string
	observed := make(map[string]bool, len(observations))
	for _, obs := range observations {
		observed[obs.Key] = true
		ent, ok := e.entities[obs.Key]
		if !ok {
			ent = &state.Entity{
				Key:        obs.Key,
				Class:      e.class,
				PID:        obs.PID,
				Port:       obs.Port,
				Protocol:   obs.Protocol,
				Name:       obs.Name,
				Cmdline:    obs.Cmdline,
				Exe:        obs.Exe,
				ScriptName: obs.ScriptName,
				FirstSeen:  now,
				CPUHistory: metrics.NewHistory(),
				MemHistory: metrics.NewHistory(),
			}
			e.entities[obs.Key] = ent
			newKeys = append(newKeys, obs.Key)
		}
		ent.LastSeen = now
		if obs.Protocol != "" {
			ent.Protocol = obs.Protocol
		}
		if obs.ScriptName != "" {
			ent.ScriptName = obs.ScriptName
		}
	}

	// Keys absent from this enumeration survive within the grace period
	// (2x the scan interval) so a single missed poll does not churn the
	// inventory. Past the grace period the entity is gone for good; a
	// later reappearance is a new identity, since the OS may have
	// reassigned the pid.
	var stopped []state.Entity
	for key, ent := range e.entities {
		if observed[key] {
			continue
		}
		if now.Sub(ent.LastSeen) > grace {
			stopped = append(stopped, ent.Snapshot())
			delete(e.entities, key)
		}
	}

	// Collect the live pids, then enrich outside the lock: metadata and
	// sampling are blocking I/O and must not stall snapshot readers.
	pids := make([]int32, 0, len(e.entities))
	for _, ent := range e.entities {
		pids = append(pids, ent.PID)
	}
	e.mu.Unlock()

	withCWD := e.class == state.ClassServer
	meta := e.resolver.Resolve(ctx, pids, withCWD)

	samples := make(map[int32]metrics.Sample, len(pids))
	sampled := make(map[int32]bool, len(pids))
	for _, pid := range pids {
		s, err := e.sampler.Sample(ctx, pid)
		if err != nil {
			continue // vanished since enumeration; keep last known values
		}
		samples[pid] = s
		sampled[pid] = true
	}

	e.mu.Lock()
	for _, ent := range e.entities {
		if m, ok := meta[ent.PID]; ok {
			applyMetadata(ent, m, e.class)
		}
		if sampled[ent.PID] {
			s := samples[ent.PID]
			ent.CPUPercent = s.CPUPercent
			ent.MemoryRSS = s.MemoryRSS
			ent.CPUHistory.Push(s.CPUPercent)
			ent.MemHistory.Push(float64(s.MemoryRSS))
		}
	}

	for _, key := range newKeys {
		if ent, ok := e.entities[key]; ok {
			events = append(events, state.Event{Kind: state.EventNew, Entity: ent.Snapshot()})
		}
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	for _, ent := range stopped {
		events = append(events, state.Event{Kind: state.EventStopped, Entity: ent})
	}
	events = append(events, state.Event{Kind: state.EventUpdate, Snapshot: snapshot})
	return events
}

func applyMetadata(ent *state.Entity, m procmeta.Metadata, class state.Class) {
	if m.Name != "" {
		ent.Name = m.Name
	}
	if m.Cmdline != "" {
		ent.Cmdline = m.Cmdline
	}
	if m.Exe != "" {
		ent.Exe = m.Exe
	}
	if class == state.ClassServer {
		if m.CWD != "" {
			ent.CWD = m.CWD
		}
		if label, ok := classifyEntity(ent); ok {
			ent.Framework = label
		}
	}
}

func (e *Engine) emit(ev state.Event) {
	e.mu.Lock()
	listeners := make([]state.Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
