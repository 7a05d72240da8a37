package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"devscope/internal/config"
	"devscope/internal/metrics"
	"devscope/internal/netscan"
	"devscope/internal/procmeta"
	"devscope/internal/state"
)

type fakeEnumerator struct {
	mu        sync.Mutex
	listeners []netscan.Listener
	err       error
	calls     int
	block     chan struct{} // when set, Enumerate waits on it
}

func (f *fakeEnumerator) set(listeners []netscan.Listener, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = listeners
	f.err = err
}

func (f *fakeEnumerator) Enumerate(ctx context.Context) ([]netscan.Listener, error) {
	f.mu.Lock()
	f.calls++
	listeners, err, block := f.listeners, f.err, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return listeners, err
}

func (f *fakeEnumerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	meta map[int32]procmeta.Metadata
}

func (f *fakeResolver) Resolve(ctx context.Context, pids []int32, withCWD bool) map[int32]procmeta.Metadata {
	out := make(map[int32]procmeta.Metadata)
	for _, pid := range pids {
		if m, ok := f.meta[pid]; ok {
			out[pid] = m
		}
	}
	return out
}

type fakeSampler struct {
	mu      sync.Mutex
	samples map[int32]metrics.Sample
	fail    map[int32]bool
}

func (f *fakeSampler) Sample(ctx context.Context, pid int32) (metrics.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[pid] {
		return metrics.Sample{}, errors.New("process has exited")
	}
	return f.samples[pid], nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *eventRecorder) listener() state.Listener {
	return func(ev state.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) byKind(kind state.EventKind) []state.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []state.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testScanConfig() config.ScanConfig {
	return config.ScanConfig{
		IntervalSeconds:       5,
		ScriptIntervalSeconds: 5,
		Ports:                 []int{3000},
		Ranges:                [][2]int{{5173, 5199}},
	}
}

func newTestServerEngine(enum *fakeEnumerator, res *fakeResolver, smp *fakeSampler) (*Engine, *eventRecorder, *time.Time) {
	cfg := testScanConfig()
	eng := NewServerEngine(func() config.ScanConfig { return cfg }, enum, res, smp)

	now := time.Unix(10000, 0)
	eng.now = func() time.Time { return now }

	rec := &eventRecorder{}
	eng.OnEvent(rec.listener())
	return eng, rec, &now
}

func TestServerEngine_FilterAndNewEvent(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{
		{PID: 100, Port: 3000, Protocol: "tcp"},
		{PID: 200, Port: 6000, Protocol: "tcp"},
	}, nil)
	res := &fakeResolver{meta: map[int32]procmeta.Metadata{
		100: {PID: 100, Name: "node", Cmdline: "next dev --turbo", Exe: "/usr/bin/node", CWD: "/home/dev/shop"},
	}}
	smp := &fakeSampler{samples: map[int32]metrics.Sample{100: {CPUPercent: 12.5, MemoryRSS: 1 << 20}}}

	eng, rec, _ := newTestServerEngine(enum, res, smp)
	eng.TriggerScan(context.Background())

	snapshot := eng.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("snapshot has %d entities, want 1 (port 6000 must be filtered out)", len(snapshot))
	}
	ent := snapshot[0]
	if ent.Key != "100:3000" {
		t.Errorf("Key = %q, want 100:3000", ent.Key)
	}
	if ent.Framework != "Next.js" {
		t.Errorf("Framework = %q, want Next.js", ent.Framework)
	}
	if ent.CWD != "/home/dev/shop" {
		t.Errorf("CWD = %q, want /home/dev/shop", ent.CWD)
	}
	if ent.CPUPercent != 12.5 || ent.MemoryRSS != 1<<20 {
		t.Errorf("metrics = (%v, %d), want (12.5, %d)", ent.CPUPercent, ent.MemoryRSS, 1<<20)
	}

	if got := rec.byKind(state.EventNew); len(got) != 1 || got[0].Entity.Key != "100:3000" {
		t.Errorf("new events = %v, want exactly one for 100:3000", got)
	}
	updates := rec.byKind(state.EventUpdate)
	if len(updates) != 1 || len(updates[0].Snapshot) != 1 {
		t.Fatalf("update events = %d with %d entities, want 1 with 1", len(updates), len(updates[0].Snapshot))
	}
}

func TestEngine_NewFiresOnce(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	eng, rec, now := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx := context.Background()
	eng.TriggerScan(ctx)
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)

	if got := rec.byKind(state.EventNew); len(got) != 1 {
		t.Errorf("new events = %d, want 1", len(got))
	}
	if got := eng.Snapshot(); len(got) != 1 || got[0].LastSeen != *now {
		t.Errorf("survivor not refreshed: %+v", got)
	}
}

func TestEngine_GracePeriod(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	eng, rec, now := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx := context.Background()
	eng.TriggerScan(ctx) // tick n: observed

	// Absent at ticks n+1 and n+2: within 2x interval, not removed.
	enum.set(nil, nil)
	for i := 0; i < 2; i++ {
		*now = now.Add(5 * time.Second)
		eng.TriggerScan(ctx)
		if len(eng.Snapshot()) != 1 {
			t.Fatalf("entity removed during grace period at +%ds", (i+1)*5)
		}
	}
	if got := rec.byKind(state.EventStopped); len(got) != 0 {
		t.Fatalf("stopped events during grace = %d, want 0", len(got))
	}

	// Absent through tick n+3: beyond 2x interval, removed once.
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)
	if len(eng.Snapshot()) != 0 {
		t.Fatal("entity survived past the grace period")
	}
	stopped := rec.byKind(state.EventStopped)
	if len(stopped) != 1 || stopped[0].Entity.Key != "100:3000" {
		t.Fatalf("stopped events = %v, want exactly one for 100:3000", stopped)
	}

	// Further cycles must not fire stopped again.
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)
	if got := rec.byKind(state.EventStopped); len(got) != 1 {
		t.Errorf("stopped events after removal = %d, want still 1", len(got))
	}
}

func TestEngine_ErrorEventKeepsState(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	eng, rec, now := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx := context.Background()
	eng.TriggerScan(ctx)

	enum.set(nil, errors.New("both sources failed"))
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)

	errs := rec.byKind(state.EventError)
	if len(errs) != 1 || errs[0].Err == nil {
		t.Fatalf("error events = %v, want exactly one with a cause", errs)
	}
	// A failed cycle mutates nothing and fires no update.
	if len(eng.Snapshot()) != 1 {
		t.Error("failed cycle mutated the entity map")
	}
	if got := rec.byKind(state.EventUpdate); len(got) != 1 {
		t.Errorf("update events = %d, want 1 (none from the failed cycle)", len(got))
	}

	// The engine keeps scanning after an error.
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)
	if got := rec.byKind(state.EventUpdate); len(got) != 2 {
		t.Errorf("update events after recovery = %d, want 2", len(got))
	}
}

func TestEngine_UpdateSnapshotSortedByPort(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{
		{PID: 300, Port: 5180, Protocol: "tcp"},
		{PID: 100, Port: 3000, Protocol: "tcp"},
		{PID: 200, Port: 5173, Protocol: "tcp"},
	}, nil)
	eng, rec, _ := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})
	eng.TriggerScan(context.Background())

	updates := rec.byKind(state.EventUpdate)
	if len(updates) != 1 {
		t.Fatalf("update events = %d, want 1", len(updates))
	}
	var ports []int
	for _, ent := range updates[0].Snapshot {
		ports = append(ports, ent.Port)
	}
	want := []int{3000, 5173, 5180}
	for i := range want {
		if ports[i] != want[i] {
			t.Fatalf("snapshot ports = %v, want %v", ports, want)
		}
	}
}

func TestEngine_VanishedProcessKeepsLastMetrics(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	smp := &fakeSampler{
		samples: map[int32]metrics.Sample{100: {CPUPercent: 20, MemoryRSS: 4096}},
		fail:    map[int32]bool{},
	}
	eng, _, now := newTestServerEngine(enum, &fakeResolver{}, smp)

	ctx := context.Background()
	eng.TriggerScan(ctx)

	smp.mu.Lock()
	smp.fail[100] = true
	smp.mu.Unlock()

	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)

	ent := eng.Snapshot()[0]
	if ent.CPUPercent != 20 || ent.MemoryRSS != 4096 {
		t.Errorf("metrics = (%v, %d), want stale (20, 4096)", ent.CPUPercent, ent.MemoryRSS)
	}
	if ent.CPUHistory.Len() != 1 {
		t.Errorf("history len = %d, want 1 (failed sample must not append)", ent.CPUHistory.Len())
	}
}

func TestEngine_SingleFlightSkipsOverlappingCycle(t *testing.T) {
	enum := &fakeEnumerator{block: make(chan struct{})}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	eng, _, _ := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		eng.TriggerScan(ctx)
		close(done)
	}()

	// Wait for the first cycle to be inside Enumerate.
	for enum.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Overlapping trigger must be skipped without touching the lister.
	eng.TriggerScan(ctx)
	if got := enum.callCount(); got != 1 {
		t.Errorf("Enumerate called %d times, want 1 (overlap skipped)", got)
	}

	close(enum.block)
	<-done
}

func TestEngine_StartIdempotentAndStop(t *testing.T) {
	enum := &fakeEnumerator{}
	eng, _, _ := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)
	eng.Start(ctx) // replaces the previous loop, must not panic or leak
	eng.Stop()
	eng.Stop() // second stop is a no-op
}

func TestScriptEngine_KeysAndSorting(t *testing.T) {
	scripts := []procmeta.Script{
		{PID: 900, Name: "python3", Cmdline: "python3 worker.py", ScriptName: "worker.py"},
		{PID: 800, Name: "node", Cmdline: "node build.js", ScriptName: "build.js"},
	}
	lister := func(ctx context.Context) ([]procmeta.Script, error) { return scripts, nil }

	cfg := testScanConfig()
	eng := NewScriptEngine(func() config.ScanConfig { return cfg }, lister, &fakeResolver{}, &fakeSampler{})
	eng.now = func() time.Time { return time.Unix(10000, 0) }

	rec := &eventRecorder{}
	eng.OnEvent(rec.listener())
	eng.TriggerScan(context.Background())

	snapshot := eng.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d entities, want 2", len(snapshot))
	}
	if snapshot[0].Key != "800" || snapshot[1].Key != "900" {
		t.Errorf("keys = %q, %q, want pid-only keys 800, 900", snapshot[0].Key, snapshot[1].Key)
	}
	// Sorted by script name: build.js before worker.py.
	if snapshot[0].ScriptName != "build.js" || snapshot[1].ScriptName != "worker.py" {
		t.Errorf("order = %q, %q, want build.js, worker.py", snapshot[0].ScriptName, snapshot[1].ScriptName)
	}
	if len(rec.byKind(state.EventNew)) != 2 {
		t.Errorf("new events = %d, want 2", len(rec.byKind(state.EventNew)))
	}
}

func TestEngine_ReappearanceIsNewEntity(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	eng, rec, now := newTestServerEngine(enum, &fakeResolver{}, &fakeSampler{})

	ctx := context.Background()
	eng.TriggerScan(ctx)
	firstSeen := eng.Snapshot()[0].FirstSeen

	// Gone long enough to be removed.
	enum.set(nil, nil)
	*now = now.Add(16 * time.Second)
	eng.TriggerScan(ctx)
	if len(eng.Snapshot()) != 0 {
		t.Fatal("entity not removed")
	}

	// Same key reappears: a fresh entity with a fresh FirstSeen.
	enum.set([]netscan.Listener{{PID: 100, Port: 3000, Protocol: "tcp"}}, nil)
	*now = now.Add(5 * time.Second)
	eng.TriggerScan(ctx)

	snapshot := eng.Snapshot()
	if len(snapshot) != 1 {
		t.Fatal("reappeared entity not tracked")
	}
	if !snapshot[0].FirstSeen.After(firstSeen) {
		t.Error("reappeared entity kept the old FirstSeen; want a new identity")
	}
	if got := rec.byKind(state.EventNew); len(got) != 2 {
		t.Errorf("new events = %d, want 2 (one per identity)", len(got))
	}
	if fmt.Sprint(rec.byKind(state.EventStopped)[0].Entity.Key) != "100:3000" {
		t.Error("stopped event key mismatch")
	}
}
