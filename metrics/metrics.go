package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	emitter "github.com/goliatone/go-emitter"
)

const namespace = "emitter"

// Recorder exports engine dispatch outcomes as Prometheus collectors.
type Recorder struct {
	dispatches *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	superseded *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ emitter.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "dispatches_total", Help: "emits submitted by action type."},
			[]string{"type"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "outcomes_total", Help: "settled emits by action type and status."},
			[]string{"type", "status"},
		),
		superseded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "superseded_total", Help: "pending emits canceled by a newer emit."},
			[]string{"type"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "time from emit to settlement.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"type"},
		),
	}

	for _, c := range []prometheus.Collector{r.dispatches, r.outcomes, r.superseded, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRecorder is like NewRecorder but panics on registration errors.
func MustRecorder(reg prometheus.Registerer) *Recorder {
	r, err := NewRecorder(reg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Recorder) RecordDispatch(actionType string) {
	r.dispatches.WithLabelValues(actionType).Inc()
}

func (r *Recorder) RecordOutcome(actionType string, status emitter.Status, duration time.Duration) {
	r.outcomes.WithLabelValues(actionType, string(status)).Inc()
	r.duration.WithLabelValues(actionType).Observe(duration.Seconds())
}

func (r *Recorder) RecordSuperseded(actionType string) {
	r.superseded.WithLabelValues(actionType).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
