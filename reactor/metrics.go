package reactor

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a reactor's activity, see
// [Reactor.Stats].
//
// Counters are always maintained. EventRate, WaitLatency and DispatchLatency
// are only populated when the reactor was created using WithMetrics(true).
type Stats struct {
	WaitLatency     LatencySnapshot
	DispatchLatency LatencySnapshot

	// Backend is the name of the backend, e.g. "epoll".
	Backend string

	// EventRate is the number of I/O callbacks per second, averaged over a
	// rolling window.
	EventRate float64

	// Polls is the number of completed iterations.
	Polls uint64
	// Events is the number of I/O callbacks invoked.
	Events uint64
	// StaleEvents is the number of readiness records dropped because the
	// registration was removed or replaced after the backend reported it.
	StaleEvents uint64
	// TimersFired is the number of timer callbacks invoked.
	TimersFired uint64
	// Wakeups is the number of wake signals sent to the backend.
	Wakeups uint64
	// Panics is the number of callbacks that panicked.
	Panics uint64

	// Registrations is the current number of registered handles.
	Registrations int
	// Timers is the current number of scheduled timers.
	Timers int
}

// LatencySnapshot holds percentiles computed from a [LatencyMetrics].
type LatencySnapshot struct {
	P50  time.Duration
	P90  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
	Mean time.Duration
	// Samples is the number of samples the values were computed from.
	Samples int
}

// counters are the always-on statistics.
type counters struct {
	polls       atomic.Uint64
	events      atomic.Uint64
	staleEvents atomic.Uint64
	timersFired atomic.Uint64
	wakeups     atomic.Uint64
	panics      atomic.Uint64
}

// metrics are the opt-in statistics.
type metrics struct {
	wait     LatencyMetrics
	dispatch LatencyMetrics
	rate     *RateCounter
}

func newMetrics() *metrics {
	return &metrics{rate: NewRateCounter(10*time.Second, 100*time.Millisecond)}
}

// LatencyMetrics tracks a latency distribution over a rolling buffer of the
// most recent samples. The zero value is ready to use.
type LatencyMetrics struct {
	samples     [sampleSize]time.Duration
	sum         time.Duration
	sampleIdx   int
	sampleCount int
	mu          sync.Mutex
}

// sampleSize is the maximum number of latency samples to retain.
const sampleSize = 1000

// Record records a latency sample.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// replacing the oldest sample
	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = duration
	l.sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Snapshot computes percentiles from the retained samples. It sorts a copy,
// so avoid calling it more often than needed for monitoring.
func (l *LatencyMetrics) Snapshot() LatencySnapshot {
	l.mu.Lock()
	count := l.sampleCount
	if count == 0 {
		l.mu.Unlock()
		return LatencySnapshot{}
	}
	sorted := make([]time.Duration, count)
	copy(sorted, l.samples[:count])
	sum := l.sum
	l.mu.Unlock()

	slices.Sort(sorted)

	return LatencySnapshot{
		P50:     sorted[percentileIndex(count, 50)],
		P90:     sorted[percentileIndex(count, 90)],
		P95:     sorted[percentileIndex(count, 95)],
		P99:     sorted[percentileIndex(count, 99)],
		Max:     sorted[count-1],
		Mean:    sum / time.Duration(count),
		Samples: count,
	}
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// RateCounter tracks events per second over a rolling window, made up of
// fixed size buckets. The rate is zero until the first event, and reflects
// the average over the whole window.
type RateCounter struct {
	lastRotation time.Time
	now          func() time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewRateCounter creates a counter averaging over windowSize (e.g. 10s),
// with a granularity of bucketSize (e.g. 100ms).
func NewRateCounter(windowSize, bucketSize time.Duration) *RateCounter {
	return newRateCounter(windowSize, bucketSize, time.Now)
}

func newRateCounter(windowSize, bucketSize time.Duration, now func() time.Time) *RateCounter {
	if bucketSize <= 0 {
		bucketSize = windowSize
	}
	bucketCount := int(windowSize / bucketSize)
	if bucketCount < 1 {
		bucketCount = 1
	}
	return &RateCounter{
		lastRotation: now(),
		now:          now,
		buckets:      make([]int64, bucketCount),
		bucketSize:   bucketSize,
		windowSize:   time.Duration(bucketCount) * bucketSize,
	}
}

// Add records n events.
func (t *RateCounter) Add(n int64) {
	t.mu.Lock()
	t.rotate()
	t.buckets[len(t.buckets)-1] += n
	t.mu.Unlock()
}

// Rate returns the current events per second.
func (t *RateCounter) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rotate()

	var sum int64
	for _, count := range t.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}
	return float64(sum) / t.windowSize.Seconds()
}

// rotate advances the buckets if time has passed. Must hold mu.
func (t *RateCounter) rotate() {
	now := t.now()
	advance := int(now.Sub(t.lastRotation) / t.bucketSize)
	if advance <= 0 {
		return
	}

	if advance >= len(t.buckets) {
		clear(t.buckets)
		t.lastRotation = now
		return
	}

	copy(t.buckets, t.buckets[advance:])
	clear(t.buckets[len(t.buckets)-advance:])
	t.lastRotation = t.lastRotation.Add(time.Duration(advance) * t.bucketSize)
}
