package metrics

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/codalotl/xrayreport/internal/fsutil"
	"github.com/codalotl/xrayreport/internal/types"
)

// Collector captures run metrics. It satisfies aggregator.Observer.
type Collector struct {
	registry         *prometheus.Registry
	specsTotal       *prometheus.CounterVec
	evidenceTotal    prometheus.Counter
	evidenceDuration prometheus.Histogram
	pendingSpecs     prometheus.Gauge
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		specsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xrayreport_specs_total", Help: "Completed specs by step status"},
			[]string{"status"},
		),
		evidenceTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "xrayreport_evidence_total", Help: "Evidence items attached to steps"},
		),
		evidenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xrayreport_evidence_duration_seconds",
			Help:    "Time spent gathering evidence per spec",
			Buckets: prometheus.DefBuckets,
		}),
		pendingSpecs: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "xrayreport_pending_specs", Help: "Specs started but not yet resolved"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xrayreport_deliveries_total", Help: "Report deliveries by result"},
			[]string{"result"},
		),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xrayreport_delivery_duration_seconds",
			Help:    "Report delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(c.specsTotal, c.evidenceTotal, c.evidenceDuration, c.pendingSpecs, c.deliveriesTotal, c.deliveryDuration)
	return c
}

func (c *Collector) SpecCompleted(status types.Status) {
	c.specsTotal.WithLabelValues(string(status)).Inc()
}

func (c *Collector) EvidenceGathered(count int, took time.Duration) {
	c.evidenceTotal.Add(float64(count))
	c.evidenceDuration.Observe(took.Seconds())
}

func (c *Collector) PendingSpecs(n int) {
	c.pendingSpecs.Set(float64(n))
}

func (c *Collector) Delivered(took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.deliveriesTotal.WithLabelValues(result).Inc()
	c.deliveryDuration.Observe(took.Seconds())
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return fsutil.WriteFile(path, buf.Bytes(), 0o644)
}
