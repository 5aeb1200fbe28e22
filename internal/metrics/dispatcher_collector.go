package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueSource exposes the live state of the in-process work queue.
type QueueSource interface {
	QueueDepth() int
	InFlight() int
	Workers() int
}

type dispatcherCollector struct {
	src QueueSource

	depthDesc    *prometheus.Desc
	inFlightDesc *prometheus.Desc
	workersDesc  *prometheus.Desc
}

func newDispatcherCollector(src QueueSource) *dispatcherCollector {
	return &dispatcherCollector{
		src: src,
		depthDesc: prometheus.NewDesc(
			"synth_dispatcher_queue_depth",
			"Generation requests waiting for a worker.",
			nil, nil,
		),
		inFlightDesc: prometheus.NewDesc(
			"synth_dispatcher_in_flight",
			"Generation requests currently being processed.",
			nil, nil,
		),
		workersDesc: prometheus.NewDesc(
			"synth_dispatcher_workers",
			"Configured number of dispatcher workers.",
			nil, nil,
		),
	}
}

func (c *dispatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depthDesc
	ch <- c.inFlightDesc
	ch <- c.workersDesc
}

func (c *dispatcherCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.depthDesc, prometheus.GaugeValue, float64(c.src.QueueDepth()))
	ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, float64(c.src.InFlight()))
	ch <- prometheus.MustNewConstMetric(c.workersDesc, prometheus.GaugeValue, float64(c.src.Workers()))
}

var registerDispatcherCollectorOnce sync.Once

func RegisterDispatcherCollector(src QueueSource) {
	registerDispatcherCollectorOnce.Do(func() {
		prometheus.MustRegister(newDispatcherCollector(src))
	})
}
