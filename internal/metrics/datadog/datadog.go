// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Observations are buffered in memory and submitted on Flush, which runs on
// a ticker (default once per minute) and once more on Close. A single
// archive_work run therefore shows up as a time series rather than one spike
// at exit. If the process is killed outright the last window is lost.
//
// Only the webnovel_* metric families are understood; anything else is
// dropped on the floor.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"webnovel/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "webnovel".
	JobName string

	// Tags are extra Datadog tags (e.g. "env:prod", "site:kakuyomu").
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	extractCounts map[string]float64 // group\x00source -> count
	fetchCounts   map[string]float64 // status -> count
	fetchDur      map[string][]float64
	chapterCounts map[string]float64 // status -> count
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client, which
// reads DD_API_KEY and DD_SITE from the environment. The flush loop starts
// immediately; call Close to stop it.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}

	job := opts.JobName
	if job == "" {
		job = "webnovel"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.reset()

	go b.loop()
	return b, nil
}

func (b *Backend) reset() {
	b.extractCounts = make(map[string]float64)
	b.fetchCounts = make(map[string]float64)
	b.fetchDur = make(map[string][]float64)
	b.chapterCounts = make(map[string]float64)
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.ExtractTotal:
		group := labels["group"]
		if group == "" {
			return
		}
		b.extractCounts[pairKey(group, orUnknown(labels["source"]))] += delta
	case metrics.FetchRequestsTotal:
		b.fetchCounts[orUnknown(labels["status"])] += delta
	case metrics.ChaptersTotal:
		b.chapterCounts[orUnknown(labels["status"])] += delta
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if name == metrics.FetchDurationSeconds {
		status := orUnknown(labels["status"])
		b.fetchDur[status] = append(b.fetchDur[status], value)
	}
}

// snapshot is one collection window, detached from the live buffers.
type snapshot struct {
	extractCounts map[string]float64
	fetchCounts   map[string]float64
	fetchDur      map[string][]float64
	chapterCounts map[string]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		extractCounts: b.extractCounts,
		fetchCounts:   b.fetchCounts,
		fetchDur:      b.fetchDur,
		chapterCounts: b.chapterCounts,
	}
	b.reset()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.extractCounts) == 0 &&
		len(s.fetchCounts) == 0 &&
		len(s.fetchDur) == 0 &&
		len(s.chapterCounts) == 0
}

// Flush submits buffered metrics and resets the buffers. It returns nil
// without calling Datadog when nothing was recorded. Buffers are reset even
// when submission fails.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a snapshot into Datadog series stamped nowUnix. Series
// are sorted by metric name and then tags so payloads are reproducible.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	var series []datadogV2.MetricSeries

	for k, v := range s.extractCounts {
		group, source := splitPairKey(k)
		series = append(series, countSeries("webnovel.extract.total", v, withTags(b.baseTags, "group:"+group, "source:"+source), nowUnix))
	}
	for status, v := range s.fetchCounts {
		series = append(series, countSeries("webnovel.fetch.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, v := range s.chapterCounts {
		series = append(series, countSeries("webnovel.chapters.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.fetchDur {
		addPercentiles(&series, "webnovel.fetch.duration_seconds", samples, withTags(b.baseTags, "status:"+status), nowUnix)
	}

	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples. The
// input slice is not modified.
func addPercentiles(series *[]datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	for _, q := range []struct {
		suffix string
		p      float64
	}{{".p50", 0.50}, {".p90", 0.90}, {".p95", 0.95}, {".p99", 0.99}} {
		*series = append(*series, gaugeSeries(prefix+q.suffix, percentileNearestRank(cp, q.p), tags, nowUnix))
	}
	*series = append(*series, gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return pointSeries(metric, datadogV2.METRICINTAKETYPE_COUNT, value, tags, nowUnix)
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return pointSeries(metric, datadogV2.METRICINTAKETYPE_GAUGE, value, tags, nowUnix)
}

func pointSeries(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func splitPairKey(k string) (a, b string) {
	if i := strings.IndexByte(k, 0); i >= 0 {
		return k[:i], k[i+1:]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}

var _ metrics.Backend = (*Backend)(nil)
