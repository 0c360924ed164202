package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with collectors registered on reg.
type Prometheus struct {
	itemsPushed     prometheus.Counter
	itemsAssigned   prometheus.Counter
	queueDepth      prometheus.Gauge
	snapshotLatency prometheus.Histogram
	snapshotErrors  prometheus.Counter
	deliveryErrors  prometheus.Counter
	timerTicks      *prometheus.CounterVec
	liveTimers      prometheus.Gauge
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus registers the collectors on reg (prometheus.DefaultRegisterer
// when nil) under namespace ("autodrop" when empty).
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "autodrop"
	}
	p := &Prometheus{
		itemsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_pushed_total",
			Help:      "Items appended to the queue.",
		}),
		itemsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_assigned_total",
			Help:      "Items removed from the queue and assigned to a consumer.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Undelivered items in the queue.",
		}),
		snapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "save_seconds",
			Help:      "Snapshot write latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "save_failures_total",
			Help:      "Snapshot writes that failed; state kept in memory only.",
		}),
		deliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Transport sends that failed.",
		}),
		timerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "ticks_total",
			Help:      "Timer wake-ups by outcome.",
		}, []string{"outcome"}),
		liveTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "live",
			Help:      "Timer loops currently running.",
		}),
	}
	for _, c := range []prometheus.Collector{
		p.itemsPushed, p.itemsAssigned, p.queueDepth, p.snapshotLatency,
		p.snapshotErrors, p.deliveryErrors, p.timerTicks, p.liveTimers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ItemsPushed(n int) { p.itemsPushed.Add(float64(n)) }

func (p *Prometheus) ItemAssigned() { p.itemsAssigned.Inc() }

func (p *Prometheus) QueueDepth(n int) { p.queueDepth.Set(float64(n)) }

func (p *Prometheus) SnapshotSaved(seconds float64) { p.snapshotLatency.Observe(seconds) }

func (p *Prometheus) SnapshotFailed() { p.snapshotErrors.Inc() }

func (p *Prometheus) DeliveryFailed() { p.deliveryErrors.Inc() }

func (p *Prometheus) TimerTick(outcome string) { p.timerTicks.WithLabelValues(outcome).Inc() }

func (p *Prometheus) LiveTimers(n int) { p.liveTimers.Set(float64(n)) }
