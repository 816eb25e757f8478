package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ComponentStress      = "stress"
	ComponentAttribution = "attribution"

	OutcomeSuccess = "success"
	OutcomeError   = "error"

	StatusScored  = "scored"
	StatusFitted  = "fitted"
	StatusSkipped = "skipped"
)

// Registry holds the gridpulse collectors on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Regions     *prometheus.CounterVec
	HighStress  prometheus.Gauge
}

// NewRegistry creates the collectors and registers them along with the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridpulse_runs_total",
				Help: "Total number of computation runs by component and outcome",
			},
			[]string{"component", "outcome"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gridpulse_run_duration_seconds",
				Help:    "Duration of computation runs in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"component"},
		),

		Regions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridpulse_regions_total",
				Help: "Total number of regions processed by component and status",
			},
			[]string{"component", "status"},
		),

		HighStress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gridpulse_high_stress_months",
				Help: "Number of flagged high-stress region-months in the latest stress run",
			},
		),
	}

	r.reg.MustRegister(
		r.Runs,
		r.RunDuration,
		r.Regions,
		r.HighStress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Timer measures one run.
type Timer struct {
	r         *Registry
	component string
	start     time.Time
}

// StartRun begins timing a run of component.
func (r *Registry) StartRun(component string) *Timer {
	return &Timer{r: r, component: component, start: time.Now()}
}

// Stop records the run duration and counts it under the outcome derived
// from err. It returns err unchanged.
func (t *Timer) Stop(err error) error {
	if t == nil || t.r == nil {
		return err
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	t.r.RunDuration.WithLabelValues(t.component).Observe(time.Since(t.start).Seconds())
	t.r.Runs.WithLabelValues(t.component, outcome).Inc()
	return err
}

// RecordRegions adds n regions with the given status.
func (r *Registry) RecordRegions(component, status string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Regions.WithLabelValues(component, status).Add(float64(n))
}

// SetHighStressMonths reports the flagged count of the latest stress run.
func (r *Registry) SetHighStressMonths(n int) {
	if r == nil {
		return
	}
	r.HighStress.Set(float64(n))
}
