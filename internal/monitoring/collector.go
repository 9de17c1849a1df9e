// Package monitoring records per-run fetch and scoring metrics.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/resilience"
)

// MetricsSnapshot holds a point-in-time view of one run.
type MetricsSnapshot struct {
	RunID string `json:"run_id"`

	// Fetch metrics.
	Attempts        int            `json:"attempts"`
	AttemptsByClass map[string]int `json:"attempts_by_class"`
	BackoffTotal    time.Duration  `json:"backoff_total_ns"`
	Cooldowns       int            `json:"cooldowns"`

	// Page metrics.
	Pages          int `json:"pages"`
	RecordsScored  int `json:"records_scored"`
	RecordsSkipped int `json:"records_skipped"`

	StartedAt   time.Time `json:"started_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector observes a run. It satisfies fetcher.Observer and
// pipeline.Observer and mirrors every count into a Prometheus registry.
type Collector struct {
	mu   sync.Mutex
	snap MetricsSnapshot

	registry  *prometheus.Registry
	attempts  *prometheus.CounterVec
	backoff   prometheus.Counter
	cooldowns prometheus.Counter
	pages     prometheus.Counter
	records   *prometheus.CounterVec
	lastRun   prometheus.Gauge

	nowFunc func() time.Time
}

// NewCollector creates a collector for the run with the given id.
func NewCollector(runID string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_fetch_attempts_total",
			Help: "Page fetch attempts by outcome class.",
		}, []string{"class"}),
		backoff: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_fetch_backoff_seconds_total",
			Help: "Total scheduled backoff between page fetch attempts.",
		}),
		cooldowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_page_cooldowns_total",
			Help: "Page fetches that exhausted every attempt and cooled down.",
		}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_pages_total",
			Help: "Pages fetched and folded.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_records_total",
			Help: "Patient records by disposition.",
		}, []string{"disposition"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assessment_last_run_timestamp_seconds",
			Help: "Unix time the run metrics were last written.",
		}),
		nowFunc: time.Now,
	}
	c.registry.MustRegister(c.attempts, c.backoff, c.cooldowns, c.pages, c.records, c.lastRun)

	c.snap = MetricsSnapshot{
		RunID:           runID,
		AttemptsByClass: make(map[string]int),
		StartedAt:       c.nowFunc().UTC(),
	}
	return c
}

// ObserveAttempt records one page fetch attempt.
func (c *Collector) ObserveAttempt(_, _ int, class resilience.Class, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Attempts++
	c.snap.AttemptsByClass[class.String()]++
	c.snap.BackoffTotal += delay

	c.attempts.WithLabelValues(class.String()).Inc()
	c.backoff.Add(delay.Seconds())
}

// ObservePage records one folded page.
func (c *Collector) ObservePage(_, scored, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Pages++
	c.snap.RecordsScored += scored
	c.snap.RecordsSkipped += skipped

	c.pages.Inc()
	c.records.WithLabelValues("scored").Add(float64(scored))
	c.records.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveCooldown records a page-level cooldown.
func (c *Collector) ObserveCooldown(_ int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Cooldowns++
	c.cooldowns.Inc()
}

// Snapshot returns a copy of the current metrics.
func (c *Collector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snap
	snap.AttemptsByClass = make(map[string]int, len(c.snap.AttemptsByClass))
	for k, v := range c.snap.AttemptsByClass {
		snap.AttemptsByClass[k] = v
	}
	snap.CollectedAt = c.nowFunc().UTC()
	return snap
}

// WriteTextfile writes the metrics in the Prometheus text format, suitable
// for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	c.mu.Lock()
	c.lastRun.Set(float64(c.nowFunc().Unix()))
	c.mu.Unlock()

	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
