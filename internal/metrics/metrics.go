// Package metrics is the process-wide metrics facade.
//
// Library and command code record through the package-level helpers; the
// concrete sink (Datadog, or nothing) is chosen once by the command via
// SetBackend. The default backend discards everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names.
const (
	ExtractTotal         = "webnovel_extract_total"
	FetchRequestsTotal   = "webnovel_fetch_requests_total"
	FetchDurationSeconds = "webnovel_fetch_duration_seconds"
	ChaptersTotal        = "webnovel_chapters_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
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

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// RecordExtract counts one extraction of a field group ("work", "chapters",
// "episode") and the back end that produced it ("json", "tree", "none").
func RecordExtract(group, source string) {
	IncCounter(ExtractTotal, 1, Labels{"group": group, "source": source})
}

// RecordFetch records one HTTP attempt. status 0 means the request never got
// a response; err is reported as status "error" in that case.
func RecordFetch(status int, err error, d time.Duration) {
	s := strconv.Itoa(status)
	if status == 0 {
		s = "error"
		if err == nil {
			s = "unknown"
		}
	}
	l := Labels{"status": s}
	IncCounter(FetchRequestsTotal, 1, l)
	ObserveHistogram(FetchDurationSeconds, d.Seconds(), l)
}

// RecordChapter counts one archived chapter by outcome ("saved",
// "unchanged", "failed").
func RecordChapter(status string) {
	IncCounter(ChaptersTotal, 1, Labels{"status": status})
}
