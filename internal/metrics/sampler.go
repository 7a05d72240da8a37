package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one CPU/memory observation for a process.
type Sample struct {
	CPUPercent float64
	MemoryRSS  uint64
}

// Sampler reads current resource usage for a pid.
type Sampler struct {
	// sample is swappable in tests.
	sample func(ctx context.Context, pid int32) (Sample, error)
}

func NewSampler() *Sampler {
	return &Sampler{sample: gopsutilSample}
}

// Sample returns the process's current CPU percent and resident memory.
// Failure means the process exited since enumeration; callers keep the
// previous values and skip the history append for this cycle.
func (s *Sampler) Sample(ctx context.Context, pid int32) (Sample, error) {
	return s.sample(ctx, pid)
}

func gopsutilSample(ctx context.Context, pid int32) (Sample, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Sample{}, fmt.Errorf("process %d: %w", pid, err)
	}

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("cpu for pid %d: %w", pid, err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("memory for pid %d: %w", pid, err)
	}

	out := Sample{CPUPercent: cpu}
	if mem != nil {
		out.MemoryRSS = mem.RSS
	}
	return out, nil
}
