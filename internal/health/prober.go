// Package health probes tracked servers over HTTP and classifies their
// round-trip time into tiers.
//
// The prober runs on its own timer, independent of the reconciliation
// engines. It only ever probes the target list most recently pushed to
// it, and its record map is pruned to exactly that key set: health
// tracking is purely derivative of the engine's authoritative entities.
package health

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a health tier derived from probe round-trip time.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusSlow    Status = "slow"
	StatusDown    Status = "down"
)

const (
	// healthyBelow and slowBelow are the tier boundaries; at or above
	// slowBelow a reachable server still counts as down.
	healthyBelow = 500 * time.Millisecond
	slowBelow    = 2000 * time.Millisecond

	// probeTimeout bounds each request, and with it the whole fan-out.
	probeTimeout = 3000 * time.Millisecond
)

// Target is one (entity key, url) pair to probe.
type Target struct {
	Key string
	URL string
}

// Record is the probe outcome for one target key.
type Record struct {
	Key       string
	Status    Status
	RTT       time.Duration // zero when the probe failed
	Error     string        // empty on success
	CheckedAt time.Time
}

// UpdateFunc receives the full record set after every completed probe
// fan-out, sorted by key.
type UpdateFunc func(records []Record)

// Prober fans out HTTP HEAD probes against the current target list.
type Prober struct {
	client   *http.Client
	interval time.Duration

	mu        sync.Mutex
	targets   []Target
	records   map[string]Record
	listeners []UpdateFunc
	stopCh    chan struct{}

	now func() time.Time

	// inFlight skips a tick when the previous fan-out has not settled.
	inFlight atomic.Bool
}

func NewProber(interval time.Duration) *Prober {
	return &Prober{
		client:   &http.Client{Timeout: probeTimeout},
		interval: interval,
		records:  make(map[string]Record),
		now:      time.Now,
	}
}

// OnUpdate registers a listener for completed probe rounds. Listeners are
// invoked synchronously outside the prober lock.
func (p *Prober) OnUpdate(fn UpdateFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetTargets replaces the probe list. Records for keys no longer present
// are deleted immediately; health has no grace period of its own.
func (p *Prober) SetTargets(targets []Target) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.targets = make([]Target, len(targets))
	copy(p.targets, targets)

	keep := make(map[string]bool, len(targets))
	for _, t := range targets {
		keep[t.Key] = true
	}
	for key := range p.records {
		if !keep[key] {
			delete(p.records, key)
		}
	}
}

// Start begins the probe loop. Idempotent: a running loop is stopped
// before the new one starts.
func (p *Prober) Start() {
	p.mu.Lock()
	if p.stopCh != nil {
		close(p.stopCh)
	}
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	go p.loop(stopCh)
}

// Stop prevents future probe rounds. In-flight requests run to their own
// timeout.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

func (p *Prober) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.ProbeNow()
		}
	}
}

// ProbeNow runs one probe round immediately: one HEAD request per target,
// all concurrent, waiting for every one to settle before emitting the
// combined update.
func (p *Prober) ProbeNow() {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	targets := make([]Target, len(p.targets))
	copy(targets, p.targets)
	p.mu.Unlock()

	results := make([]Record, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = p.probe(target)
		}(i, target)
	}
	wg.Wait()

	p.mu.Lock()
	// A SetTargets call may have raced the fan-out; keep only results
	// for keys still tracked.
	keep := make(map[string]bool, len(p.targets))
	for _, t := range p.targets {
		keep[t.Key] = true
	}
	for _, r := range results {
		if keep[r.Key] {
			p.records[r.Key] = r
		}
	}
	snapshot := p.snapshotLocked()
	listeners := make([]UpdateFunc, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Records returns the current record set, sorted by key.
func (p *Prober) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Prober) snapshotLocked() []Record {
	out := make([]Record, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// probe issues one HEAD request. Any response, whatever its status code,
// counts as reachable; only the round-trip time decides the tier.
func (p *Prober) probe(target Target) Record {
	rec := Record{Key: target.Key, CheckedAt: p.now()}

	start := p.now()
	resp, err := p.client.Head(target.URL)
	if err != nil {
		rec.Status = StatusDown
		rec.Error = err.Error()
		return rec
	}
	resp.Body.Close()

	rec.RTT = p.now().Sub(start)
	rec.Status = Classify(rec.RTT)
	return rec
}

// Classify maps a measured round-trip time to a health tier.
func Classify(rtt time.Duration) Status {
	switch {
	case rtt < healthyBelow:
		return StatusHealthy
	case rtt < slowBelow:
		return StatusSlow
	default:
		return StatusDown
	}
}
