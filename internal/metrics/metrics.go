package metrics

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeRecord stores one upstream request.
type ProbeRecord struct {
	Timestamp string  `json:"timestamp"`
	Endpoint  string  `json:"endpoint"`
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
}

// AuditEntry records a runtime action issued through the panel.
type AuditEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"` // load, unload, refresh
	Actor     string `json:"actor"`  // remote address
	Target    string `json:"target"` // model id
	Detail    string `json:"detail"` // inline result text
}

// EventEntry records a status transition seen by the poller.
type EventEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"` // info, warn
	Resource  string `json:"resource"`
	Message   string `json:"message"`
}

// HealthCheckResult records one status-table row per poll cycle.
type HealthCheckResult struct {
	Timestamp string  `json:"timestamp"`
	Resource  string  `json:"resource"`
	Endpoint  string  `json:"endpoint"`
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
}

// Metrics collects probe counters, latency samples and short histories.
type Metrics struct {
	mu sync.RWMutex

	ProbesTotal   int64
	ProbeFailures int64
	CacheHits     int64
	CacheMisses   int64
	ActionsTotal  int64

	// Histogram (latency buckets in ms)
	LatencyBuckets []float64
	LatencyCounts  []int64

	endpoints map[string]*endpointStats

	probeHistory [500]ProbeRecord
	probeIdx     int
	probeCnt     int

	auditLog [200]AuditEntry
	auditIdx int
	auditCnt int

	eventLog [200]EventEntry
	eventIdx int
	eventCnt int

	healthHistory [500]HealthCheckResult
	healthIdx     int
	healthCnt     int

	healthTotalChecks int64
	healthPassChecks  int64

	now       func() time.Time
	startTime time.Time
}

type endpointStats struct {
	total    int64
	failures int64
	lat      latencyRing
}

type latencyRing struct {
	samples [1000]float64
	idx     int
	count   int
}

func (lr *latencyRing) add(ms float64) {
	lr.samples[lr.idx%len(lr.samples)] = ms
	lr.idx++
	if lr.count < len(lr.samples) {
		lr.count++
	}
}

func (lr *latencyRing) values() []float64 {
	out := make([]float64, lr.count)
	start := 0
	if lr.idx > len(lr.samples) {
		start = lr.idx % len(lr.samples)
	}
	for i := 0; i < lr.count; i++ {
		out[i] = lr.samples[(start+i)%len(lr.samples)]
	}
	return out
}

func (lr *latencyRing) percentile(p float64) float64 {
	if lr.count == 0 {
		return 0
	}
	sorted := lr.values()
	sort.Float64s(sorted)
	rank := p / 100.0 * float64(lr.count-1)
	return sorted[int(math.Round(rank))]
}

func (lr *latencyRing) avg() float64 {
	if lr.count == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range lr.values() {
		sum += v
	}
	return sum / float64(lr.count)
}

func New() *Metrics {
	return &Metrics{
		LatencyBuckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 3000, 5000},
		LatencyCounts:  make([]int64, 11), // len(buckets) + 1 for +Inf
		endpoints:      make(map[string]*endpointStats),
		now:            time.Now,
		startTime:      time.Now(),
	}
}

func (m *Metrics) timestamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

// endpointKey drops the query string so per-collection probes share a series.
func endpointKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// RecordProbe implements probe.Recorder.
func (m *Metrics) RecordProbe(rawURL string, ok bool, latencyMs float64) {
	atomic.AddInt64(&m.ProbesTotal, 1)
	if !ok {
		atomic.AddInt64(&m.ProbeFailures, 1)
	}
	key := endpointKey(rawURL)

	m.mu.Lock()
	es, found := m.endpoints[key]
	if !found {
		es = &endpointStats{}
		m.endpoints[key] = es
	}
	es.total++
	if !ok {
		es.failures++
	}
	es.lat.add(latencyMs)

	m.probeHistory[m.probeIdx%len(m.probeHistory)] = ProbeRecord{
		Timestamp: m.timestamp(),
		Endpoint:  key,
		OK:        ok,
		LatencyMs: latencyMs,
	}
	m.probeIdx++
	if m.probeCnt < len(m.probeHistory) {
		m.probeCnt++
	}
	m.mu.Unlock()

	// Non-cumulative: only the first matching bucket is incremented.
	for i, bound := range m.LatencyBuckets {
		if latencyMs <= bound {
			atomic.AddInt64(&m.LatencyCounts[i], 1)
			return
		}
	}
	atomic.AddInt64(&m.LatencyCounts[len(m.LatencyBuckets)], 1)
}

// GetProbeHistory returns the most recent probes, newest first.
func (m *Metrics) GetProbeHistory(limit int) []ProbeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.probeHistory[:], m.probeIdx, m.probeCnt, limit)
}

func (m *Metrics) RecordCacheHit()  { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) RecordCacheMiss() { atomic.AddInt64(&m.CacheMisses, 1) }

// newestFirst reads up to limit entries of a ring buffer backwards from idx.
func newestFirst[T any](ring []T, idx, cnt, limit int) []T {
	if limit <= 0 || limit > cnt {
		limit = cnt
	}
	if limit == 0 {
		return nil
	}
	result := make([]T, limit)
	for i := 0; i < limit; i++ {
		j := idx - 1 - i
		if j < 0 {
			j += len(ring)
		}
		result[i] = ring[j%len(ring)]
	}
	return result
}

// --- Audit Log ---

// AddAuditEntry records a runtime action.
func (m *Metrics) AddAuditEntry(action, actor, target, detail string) {
	atomic.AddInt64(&m.ActionsTotal, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLog[m.auditIdx%len(m.auditLog)] = AuditEntry{
		Timestamp: m.timestamp(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Detail:    detail,
	}
	m.auditIdx++
	if m.auditCnt < len(m.auditLog) {
		m.auditCnt++
	}
}

func (m *Metrics) GetAuditLog(limit int) []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.auditLog[:], m.auditIdx, m.auditCnt, limit)
}

// --- Event Log ---

func (m *Metrics) AddEvent(level, resource, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventLog[m.eventIdx%len(m.eventLog)] = EventEntry{
		Timestamp: m.timestamp(),
		Level:     level,
		Resource:  resource,
		Message:   message,
	}
	m.eventIdx++
	if m.eventCnt < len(m.eventLog) {
		m.eventCnt++
	}
}

func (m *Metrics) GetEventLog(limit int) []EventEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.eventLog[:], m.eventIdx, m.eventCnt, limit)
}

// --- Health Check History ---

// AddHealthCheck records the outcome for one status-table row.
func (m *Metrics) AddHealthCheck(resource, endpoint string, ok bool, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthHistory[m.healthIdx%len(m.healthHistory)] = HealthCheckResult{
		Timestamp: m.timestamp(),
		Resource:  resource,
		Endpoint:  endpoint,
		OK:        ok,
		LatencyMs: latencyMs,
	}
	m.healthIdx++
	if m.healthCnt < len(m.healthHistory) {
		m.healthCnt++
	}
	atomic.AddInt64(&m.healthTotalChecks, 1)
	if ok {
		atomic.AddInt64(&m.healthPassChecks, 1)
	}
}

func (m *Metrics) GetHealthHistory(limit int) []HealthCheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.healthHistory[:], m.healthIdx, m.healthCnt, limit)
}

// --- Snapshot ---

// Snapshot is the JSON summary served at /api/probes.
type Snapshot struct {
	Uptime        float64                 `json:"uptime_seconds"`
	ProbesTotal   int64                   `json:"probes_total"`
	ProbeFailures int64                   `json:"probe_failures"`
	CacheHits     int64                   `json:"cache_hits"`
	CacheMisses   int64                   `json:"cache_misses"`
	ActionsTotal  int64                   `json:"actions_total"`
	UptimePct     float64                 `json:"uptime_pct"`
	Endpoints     map[string]EndpointStat `json:"endpoints"`
}

type EndpointStat struct {
	Probes   int64   `json:"probes"`
	Failures int64   `json:"failures"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

func (m *Metrics) GetSnapshot() Snapshot {
	s := Snapshot{
		Uptime:        time.Since(m.startTime).Seconds(),
		ProbesTotal:   atomic.LoadInt64(&m.ProbesTotal),
		ProbeFailures: atomic.LoadInt64(&m.ProbeFailures),
		CacheHits:     atomic.LoadInt64(&m.CacheHits),
		CacheMisses:   atomic.LoadInt64(&m.CacheMisses),
		ActionsTotal:  atomic.LoadInt64(&m.ActionsTotal),
		UptimePct:     100,
		Endpoints:     make(map[string]EndpointStat),
	}
	if total := atomic.LoadInt64(&m.healthTotalChecks); total > 0 {
		s.UptimePct = float64(atomic.LoadInt64(&m.healthPassChecks)) / float64(total) * 100
	}

	m.mu.RLock()
	for key, es := range m.endpoints {
		s.Endpoints[key] = EndpointStat{
			Probes:   es.total,
			Failures: es.failures,
			AvgMs:    es.lat.avg(),
			P50Ms:    es.lat.percentile(50),
			P95Ms:    es.lat.percentile(95),
		}
	}
	m.mu.RUnlock()
	return s
}

// Handler serves the counters in Prometheus text format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP sitepanel_uptime_seconds Process uptime in seconds\n")
		fmt.Fprintf(w, "sitepanel_uptime_seconds %f\n\n", time.Since(m.startTime).Seconds())

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}
		counter("sitepanel_probes_total", "Upstream probe attempts", atomic.LoadInt64(&m.ProbesTotal))
		counter("sitepanel_probe_failures_total", "Upstream probes that did not succeed", atomic.LoadInt64(&m.ProbeFailures))
		counter("sitepanel_cache_hits_total", "Snapshot cache hits", atomic.LoadInt64(&m.CacheHits))
		counter("sitepanel_cache_misses_total", "Snapshot cache misses", atomic.LoadInt64(&m.CacheMisses))
		counter("sitepanel_actions_total", "Runtime load and unload actions", atomic.LoadInt64(&m.ActionsTotal))

		m.mu.RLock()
		keys := make([]string, 0, len(m.endpoints))
		for k := range m.endpoints {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "# HELP sitepanel_endpoint_probes_total Probes per endpoint\n")
		fmt.Fprintf(w, "# TYPE sitepanel_endpoint_probes_total counter\n")
		for _, k := range keys {
			fmt.Fprintf(w, "sitepanel_endpoint_probes_total{endpoint=%q} %d\n", k, m.endpoints[k].total)
			fmt.Fprintf(w, "sitepanel_endpoint_failures_total{endpoint=%q} %d\n", k, m.endpoints[k].failures)
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "# HELP sitepanel_endpoint_latency_ms Probe latency per endpoint\n")
		fmt.Fprintf(w, "# TYPE sitepanel_endpoint_latency_ms gauge\n")
		for _, k := range keys {
			lr := &m.endpoints[k].lat
			fmt.Fprintf(w, "sitepanel_endpoint_latency_p50_ms{endpoint=%q} %.1f\n", k, lr.percentile(50))
			fmt.Fprintf(w, "sitepanel_endpoint_latency_p95_ms{endpoint=%q} %.1f\n", k, lr.percentile(95))
		}
		m.mu.RUnlock()
		fmt.Fprintln(w)

		fmt.Fprintf(w, "# HELP sitepanel_probe_duration_ms Probe duration histogram\n")
		fmt.Fprintf(w, "# TYPE sitepanel_probe_duration_ms histogram\n")
		cumulative := int64(0)
		for i, bound := range m.LatencyBuckets {
			cumulative += atomic.LoadInt64(&m.LatencyCounts[i])
			fmt.Fprintf(w, "sitepanel_probe_duration_ms_bucket{le=\"%.0f\"} %d\n", bound, cumulative)
		}
		cumulative += atomic.LoadInt64(&m.LatencyCounts[len(m.LatencyBuckets)])
		fmt.Fprintf(w, "sitepanel_probe_duration_ms_bucket{le=\"+Inf\"} %d\n", cumulative)
	}
}
