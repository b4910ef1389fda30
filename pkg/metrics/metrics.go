// Package metrics exposes Prometheus instrumentation for the orchestration
// engine: message throughput from a bus tap, mailbox backlog, and workflow
// population by status.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// Collector owns all engine metrics. Registration happens against an
// injected registerer so tests can use isolated registries.
type Collector struct {
	messagesSent  *prometheus.CounterVec
	pendingBox    prometheus.Gauge
	workflows     *prometheus.GaugeVec
	phaseDuration prometheus.Histogram

	wg sync.WaitGroup
}

// NewCollector creates and registers the engine metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkharmony_messages_sent_total",
			Help: "Total messages sent on the bus, by kind",
		}, []string{"kind"}),
		pendingBox: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inkharmony_mailbox_pending",
			Help: "Undelivered messages across all mailboxes",
		}),
		workflows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inkharmony_workflows",
			Help: "Active workflows by status",
		}, []string{"status"}),
		phaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inkharmony_phase_duration_seconds",
			Help:    "Completed phase durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	reg.MustRegister(c.messagesSent, c.pendingBox, c.workflows, c.phaseDuration)
	return c
}

// Watch consumes a bus tap until the channel closes, counting traffic.
// Run once; Wait blocks until the follower drains.
func (c *Collector) Watch(tap <-chan *bus.Message) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range tap {
			c.messagesSent.WithLabelValues(msg.Kind.String()).Inc()
		}
	}()
}

// Wait blocks until all Watch followers have drained.
func (c *Collector) Wait() { c.wg.Wait() }

// ObservePhaseDuration records one completed phase's duration.
func (c *Collector) ObservePhaseDuration(seconds float64) {
	c.phaseDuration.Observe(seconds)
}

// Refresh recomputes the point-in-time gauges from the live bus and manager.
// Call it on scrape cadence or before serving /metrics.
func (c *Collector) Refresh(b *bus.MessageBus, books *workflow.Manager) {
	c.pendingBox.Set(float64(b.PendingCount()))

	counts := books.CountByStatus()
	for _, status := range []domain.WorkflowStatus{
		domain.WorkflowPending, domain.WorkflowRunning, domain.WorkflowPaused,
		domain.WorkflowCompleted, domain.WorkflowFailed,
	} {
		c.workflows.WithLabelValues(status.String()).Set(float64(counts[status]))
	}
}
