package prom

import (
	"github.com/IvanBrykalov/swrcache/swr"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements swr.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	fetches *prometheus.CounterVec
	revals  *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	sizeEnt prometheus.Gauge
	sizeObs prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Attaches served fresh data",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Attaches that found no fresh data",
			ConstLabels: constLabels,
		}),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fetches_total",
				Help:        "Finished fetch tasks by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		revals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "revalidations_total",
				Help:        "Background revalidations by trigger",
				ConstLabels: constLabels,
			},
			[]string{"trigger"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entry evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeObs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_observers",
			Help:        "Number of attached observers",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.fetches, a.revals, a.evicts, a.sizeEnt, a.sizeObs)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Fetch increments the fetch counter with an outcome label.
func (a *Adapter) Fetch(o swr.FetchOutcome) {
	a.fetches.WithLabelValues(o.String()).Inc()
}

// Revalidate increments the revalidation counter with a trigger label.
func (a *Adapter) Revalidate(t swr.RevalidateTrigger) {
	a.revals.WithLabelValues(t.String()).Inc()
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r swr.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates gauges for resident entries and attached observers.
func (a *Adapter) Size(entries, observers int) {
	a.sizeEnt.Set(float64(entries))
	a.sizeObs.Set(float64(observers))
}

// Compile-time check: ensure Adapter implements swr.Metrics.
var _ swr.Metrics = (*Adapter)(nil)
