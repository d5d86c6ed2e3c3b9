package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	counters []observation
	hists    []observation
	flushes  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, observation{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, observation{name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushes++
	return nil
}

// The tests below swap the process-wide backend and therefore do not run in
// parallel.

// TestDefaultBackendIsNop verifies calls before SetBackend are harmless.
func TestDefaultBackendIsNop(t *testing.T) {
	SetBackend(nil)
	IncCounter(StepTotal, 1, nil)
	ObserveHistogram(StepDurationSeconds, 1, nil)
	require.NoError(t, Flush())
}

// TestRecordStep verifies step counters carry step and status labels.
func TestRecordStep(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("load", nil, 2*time.Second)
	RecordStep("apply", errors.New("x"), time.Second)
	require.NoError(t, Flush())

	require.Len(t, r.counters, 2)
	assert.Equal(t, Labels{"step": "load", "status": "ok"}, r.counters[0].labels)
	assert.Equal(t, Labels{"step": "apply", "status": "error"}, r.counters[1].labels)
	require.Len(t, r.hists, 2)
	assert.Equal(t, StepDurationSeconds, r.hists[0].name)
	assert.InDelta(t, 2.0, r.hists[0].value, 1e-9)
	assert.Equal(t, 1, r.flushes)
}

// TestRecordRecords verifies non-positive counts are dropped.
func TestRecordRecords(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordRecords("parsed", 0)
	RecordRecords("parsed", 3)

	require.Len(t, r.counters, 1)
	assert.Equal(t, observation{RecordsTotal, 3, Labels{"kind": "parsed"}}, r.counters[0])
}

// TestRecordHTTP verifies status labelling and error counting.
func TestRecordHTTP(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP(200, nil, time.Second, time.Second, 10)
	RecordHTTP(404, nil, time.Second, 0, 0)
	RecordHTTP(0, errors.New("dial"), time.Second, 0, 0)

	var names []string
	for _, c := range r.counters {
		names = append(names, c.name+"/"+c.labels["status"])
	}
	assert.Equal(t, []string{
		HTTPRequestsTotal + "/200",
		HTTPRequestsTotal + "/404",
		HTTPErrorsTotal + "/404",
		HTTPRequestsTotal + "/error",
		HTTPErrorsTotal + "/error",
	}, names)
	assert.Len(t, r.hists, 5)
}
