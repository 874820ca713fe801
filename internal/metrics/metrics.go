// Package metrics exposes refresh and source health as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shutdown_tracker"

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	refreshDur    prometheus.Summary
	fetchTotal    *prometheus.CounterVec
	sourceEvents  *prometheus.GaugeVec
	skippedTotal  *prometheus.CounterVec
	lastSuccessTS *prometheus.GaugeVec
	sinkTotal     *prometheus.CounterVec
	snapEvents    prometheus.Gauge
	snapStale     prometheus.Gauge
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a private registry,
// which keeps tests from colliding on the global one.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{}
	r.refreshDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Time spent in one aggregator refresh cycle",
	})
	r.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_fetch_total",
		Help:      "Source fetches by outcome",
	}, []string{"source", "status"})
	r.sourceEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_events",
		Help:      "Events contributed by a source in its last fetch",
	}, []string{"source"})
	r.skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_skipped_records_total",
		Help:      "Provider records skipped because they could not be normalized",
	}, []string{"source"})
	r.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful fetch",
	}, []string{"source"})
	r.sinkTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_push_total",
		Help:      "Sink pushes by outcome",
	}, []string{"sink", "status"})
	r.snapEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_events",
		Help:      "Events in the published snapshot",
	})
	r.snapStale = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_stale",
		Help:      "1 when the published snapshot was retained after a failed cycle",
	})

	if reg == nil {
		private := prometheus.NewRegistry()
		reg, r.gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	reg.MustRegister(
		r.refreshDur, r.fetchTotal, r.sourceEvents, r.skippedTotal,
		r.lastSuccessTS, r.sinkTotal, r.snapEvents, r.snapStale,
	)
	return r
}

// Handler serves the registry the recorder was created against.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveRefresh(d time.Duration) {
	if r == nil {
		return
	}
	r.refreshDur.Observe(d.Seconds())
}

// ObserveFetch records one source fetch. status is "ok", "partial" or "error".
func (r *Recorder) ObserveFetch(source, status string, events, skipped int, at time.Time) {
	if r == nil {
		return
	}
	r.fetchTotal.WithLabelValues(source, status).Inc()
	if skipped > 0 {
		r.skippedTotal.WithLabelValues(source).Add(float64(skipped))
	}
	if status == "error" {
		r.sourceEvents.WithLabelValues(source).Set(0)
		return
	}
	r.sourceEvents.WithLabelValues(source).Set(float64(events))
	r.lastSuccessTS.WithLabelValues(source).Set(float64(at.Unix()))
}

func (r *Recorder) ObserveSink(sink string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.sinkTotal.WithLabelValues(sink, status).Inc()
}

func (r *Recorder) SetSnapshot(events int, stale bool) {
	if r == nil {
		return
	}
	r.snapEvents.Set(float64(events))
	if stale {
		r.snapStale.Set(1)
	} else {
		r.snapStale.Set(0)
	}
}
