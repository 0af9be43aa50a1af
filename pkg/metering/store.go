// Package metering aggregates per-backend call metrics in process and
// exports them to Prometheus.
package metering

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event is one completed backend call.
type Event struct {
	Backend   string
	Kind      string // text, vision, voice, image
	Model     string
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// Store provides per-backend, per-kind aggregation of call events.
type Store struct {
	mu     sync.RWMutex
	meters map[string]*BackendMeter

	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// BackendMeter tracks usage of one backend.
type BackendMeter struct {
	Backend      string
	TotalCalls   int64
	Errors       int64
	TotalLatency time.Duration
	Kinds        map[string]*KindMeter
}

// KindMeter tracks one call kind on a backend.
type KindMeter struct {
	Kind         string
	Calls        int64
	Errors       int64
	Duration     time.Duration
	LastModel    string
	LastActivity time.Time
}

// NewStore creates a store. A nil registerer skips Prometheus registration.
func NewStore(reg prometheus.Registerer) *Store {
	s := &Store{
		meters: make(map[string]*BackendMeter),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lupos",
			Name:      "backend_call_seconds",
			Help:      "Wall-clock latency of generation backend calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend", "kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lupos",
			Name:      "backend_errors_total",
			Help:      "Failed generation backend calls.",
		}, []string{"backend", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(s.latency, s.failures)
	}
	return s
}

// Record adds a call event to the store.
func (s *Store) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.latency.WithLabelValues(ev.Backend, ev.Kind).Observe(ev.Duration.Seconds())
	if ev.Err != nil {
		s.failures.WithLabelValues(ev.Backend, ev.Kind).Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meter, ok := s.meters[ev.Backend]
	if !ok {
		meter = &BackendMeter{
			Backend: ev.Backend,
			Kinds:   make(map[string]*KindMeter),
		}
		s.meters[ev.Backend] = meter
	}
	meter.TotalCalls++
	meter.TotalLatency += ev.Duration
	if ev.Err != nil {
		meter.Errors++
	}

	km, ok := meter.Kinds[ev.Kind]
	if !ok {
		km = &KindMeter{Kind: ev.Kind}
		meter.Kinds[ev.Kind] = km
	}
	km.Calls++
	km.Duration += ev.Duration
	if ev.Err != nil {
		km.Errors++
	}
	km.LastModel = ev.Model
	km.LastActivity = ev.Timestamp
}

// Meter returns a copy of the metrics for one backend.
func (s *Store) Meter(backend string) (BackendMeter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meters[backend]
	if !ok {
		return BackendMeter{}, false
	}
	return m.clone(), true
}

// Snapshot returns copies of all meters sorted by backend name.
func (s *Store) Snapshot() []BackendMeter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BackendMeter, 0, len(s.meters))
	for _, m := range s.meters {
		out = append(out, m.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })
	return out
}

// AverageLatency is zero when no calls were recorded.
func (m BackendMeter) AverageLatency() time.Duration {
	if m.TotalCalls == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.TotalCalls)
}

func (m *BackendMeter) clone() BackendMeter {
	c := *m
	c.Kinds = make(map[string]*KindMeter, len(m.Kinds))
	for k, v := range m.Kinds {
		km := *v
		c.Kinds[k] = &km
	}
	return c
}

// KindNames returns the recorded kind names, sorted.
func (m BackendMeter) KindNames() []string {
	return slices.Sorted(maps.Keys(m.Kinds))
}
