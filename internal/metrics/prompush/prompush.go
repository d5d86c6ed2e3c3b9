// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Collectors are created on first use of a metric name, with the label keys
// seen on that first observation. Observations whose label keys differ from
// the collector's are dropped. Flush pushes the whole registry, replacing the
// previous push for the job.
package prompush

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/metrics"
)

// Backend implements metrics.Backend on top of a private registry.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

// NewBackend prepares a backend pushing to gatewayURL under job.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if job == "" {
		job = "feedmap"
	}
	reg := prometheus.NewRegistry()
	return &Backend{
		reg:        reg,
		pusher:     push.New(gatewayURL, job).Gatherer(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
	}, nil
}

// Registry exposes the underlying registry.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.counters[name]
	if !ok {
		if _, taken := b.histograms[name]; taken {
			return
		}
		keys := sortedKeys(labels)
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpFor(name)}, keys)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.counters[name] = vec
		b.labelKeys[name] = keys
	}
	if !sameKeys(b.labelKeys[name], labels) {
		return
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.histograms[name]
	if !ok {
		if _, taken := b.counters[name]; taken {
			return
		}
		keys := sortedKeys(labels)
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: bucketsFor(name),
		}, keys)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.histograms[name] = vec
		b.labelKeys[name] = keys
	}
	if !sameKeys(b.labelKeys[name], labels) {
		return
	}
	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	o.Observe(value)
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return errors.Errorf("pushgateway push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)

func sortedKeys(l metrics.Labels) []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameKeys(keys []string, l metrics.Labels) bool {
	if len(keys) != len(l) {
		return false
	}
	for _, k := range keys {
		if _, ok := l[k]; !ok {
			return false
		}
	}
	return true
}

func bucketsFor(name string) []float64 {
	if name == metrics.HTTPDownloadBytes {
		return prometheus.ExponentialBuckets(1024, 4, 10)
	}
	return prometheus.DefBuckets
}

func helpFor(name string) string {
	switch name {
	case metrics.StepTotal:
		return "Pipeline steps by step and status."
	case metrics.StepDurationSeconds:
		return "Pipeline step duration in seconds."
	case metrics.RecordsTotal:
		return "Feed records by kind."
	case metrics.HTTPRequestsTotal:
		return "Feed fetches by HTTP status."
	case metrics.HTTPErrorsTotal:
		return "Failed feed fetches by HTTP status."
	case metrics.HTTPRequestDurationSeconds:
		return "Time to response headers."
	case metrics.HTTPResponseDurationSecs:
		return "Time to read the response body."
	case metrics.HTTPDownloadBytes:
		return "Downloaded feed size in bytes."
	default:
		return name
	}
}
