package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// LatencySampler keeps a ring of recent latency samples for the /health
// percentile summary, alongside the Prometheus histogram.
type LatencySampler struct {
	mu        sync.Mutex
	samples   []int64 // microseconds
	sampleIdx int

	total   atomic.Int64
	lastUs  atomic.Int64
}

// NewLatencySampler keeps the last n samples (default 100).
func NewLatencySampler(n int) *LatencySampler {
	if n <= 0 {
		n = 100
	}
	return &LatencySampler{samples: make([]int64, n)}
}

// Record stores one sample in microseconds.
func (m *LatencySampler) Record(us int64) {
	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = us
	m.sampleIdx++
	m.mu.Unlock()

	m.total.Add(1)
	m.lastUs.Store(us)
}

// P50 returns the median latency in microseconds.
func (m *LatencySampler) P50() int64 { return m.percentile(50) }

// P95 returns the 95th percentile latency in microseconds.
func (m *LatencySampler) P95() int64 { return m.percentile(95) }

// P99 returns the 99th percentile latency in microseconds.
func (m *LatencySampler) P99() int64 { return m.percentile(99) }

// Last returns the most recent sample.
func (m *LatencySampler) Last() int64 { return m.lastUs.Load() }

// Count returns the total samples recorded.
func (m *LatencySampler) Count() int64 { return m.total.Load() }

func (m *LatencySampler) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	if count == 0 {
		return 0
	}

	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := p * count / 100
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}
