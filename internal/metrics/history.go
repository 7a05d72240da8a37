// Package metrics samples per-process CPU and memory and keeps a short
// trailing window of samples for trend display.
package metrics

// HistorySize is the fixed capacity of a sample history: enough for a
// sparkline, constant memory per entity.
const HistorySize = 6

// History is a fixed-capacity FIFO ring of metric samples. Pushing into a
// full history evicts the oldest sample. The zero value is not usable;
// construct with NewHistory.
type History struct {
	items []float64
	head  int // index of the oldest element
	count int
}

func NewHistory() *History {
	return &History{items: make([]float64, HistorySize)}
}

// Push appends a sample, evicting the oldest when full.
func (h *History) Push(v float64) {
	writePos := (h.head + h.count) % HistorySize
	if h.count == HistorySize {
		h.items[h.head] = v
		h.head = (h.head + 1) % HistorySize
	} else {
		h.items[writePos] = v
		h.count++
	}
}

// Values returns the samples oldest-first.
func (h *History) Values() []float64 {
	if h.count == 0 {
		return nil
	}
	out := make([]float64, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.items[(h.head+i)%HistorySize]
	}
	return out
}

func (h *History) Len() int {
	return h.count
}

// Clone returns an independent copy, used when snapshotting entities.
func (h *History) Clone() *History {
	cp := NewHistory()
	cp.head = h.head
	cp.count = h.count
	copy(cp.items, h.items)
	return cp
}
