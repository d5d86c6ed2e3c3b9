// Package metrics is the backend-agnostic metrics facade used by the pipeline
// and the source loader.
//
// Callers record through the package-level helpers; a concrete backend
// (Datadog, Prometheus Pushgateway) is installed once at startup with
// SetBackend. Until then every call goes to a no-op backend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "feedmap_step_total"
	StepDurationSeconds = "feedmap_step_duration_seconds"
	RecordsTotal        = "feedmap_records_total"

	HTTPRequestsTotal          = "feedmap_http_requests_total"
	HTTPErrorsTotal            = "feedmap_http_errors_total"
	HTTPRequestDurationSeconds = "feedmap_http_request_duration_seconds"
	HTTPResponseDurationSecs   = "feedmap_http_response_duration_seconds"
	HTTPDownloadBytes          = "feedmap_http_download_bytes"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered observations, if the backend buffers.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one pipeline step and records its duration.
func RecordStep(step string, err error, d time.Duration) {
	l := Labels{"step": step, "status": status(err)}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts records by kind (e.g. "parsed", "exported").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordHTTP records one HTTP fetch. code is 0 when no response arrived.
// requestDur covers the time to response headers and responseDur the body
// read.
func RecordHTTP(code int, err error, requestDur, responseDur time.Duration, bytes int64) {
	st := "error"
	if code > 0 {
		st = strconv.Itoa(code)
	}
	l := Labels{"status": st}

	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || code < 200 || code >= 300 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(HTTPRequestDurationSeconds, requestDur.Seconds(), l)
	if responseDur > 0 {
		ObserveHistogram(HTTPResponseDurationSecs, responseDur.Seconds(), l)
	}
	if bytes > 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
