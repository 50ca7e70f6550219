package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	ticks         prometheus.Counter
	samples       prometheus.Counter
	dropped       prometheus.Counter
	captureErrors prometheus.Counter
	tickDuration  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, session string) *metrics {
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"session": session}, reg)
	}
	f := promauto.With(reg)

	return &metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "schaap_profiler_ticks_total",
			Help: "Total number of timer ticks handled.",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "schaap_profiler_samples_total",
			Help: "Total number of samples accepted by the sink.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "schaap_profiler_samples_dropped_total",
			Help: "Total number of samples the sink failed to accept.",
		}),
		captureErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "schaap_profiler_capture_errors_total",
			Help: "Total number of ticks where no stack snapshot could be taken.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:                        "schaap_profiler_tick_duration_seconds",
			Help:                        "Time spent handling one tick.",
			Buckets:                     prometheus.ExponentialBuckets(0.00005, 2, 12),
			NativeHistogramBucketFactor: 1.1,
		}),
	}
}
