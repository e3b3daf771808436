package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const namespace = "techsheet"

// PipelineMetrics implements ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	fieldRejections *prometheus.CounterVec
	visualAnalysis  *prometheus.CounterVec
	sketchTotal     *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by terminal status.",
		}, []string{"service", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by terminal status.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 180, 300},
		}, []string{"service", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "in_flight",
			Help:        "Pipeline runs currently executing.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
		}, []string{"service", "stage"}),
		fieldRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_rejections_total",
			Help:      "Model-proposed field values dropped during merge, by reason.",
		}, []string{"service", "reason"}),
		visualAnalysis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visual_analysis_total",
			Help:      "Visual analyses by outcome mode (structured, prose, none).",
		}, []string{"service", "mode"}),
		sketchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sketch_generation_total",
			Help:      "Drawing generation outcomes by sketch status.",
		}, []string{"service", "status"}),
		queueLag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_lag_seconds",
			Help:      "Delay between enqueueing a specification and the worker picking it up.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"service"}),
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.inFlight, m.stageDuration,
		m.fieldRejections, m.visualAnalysis, m.sketchTotal, m.queueLag)
	return m
}

func (m *PipelineMetrics) StartRun() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) FinishRun(status domain.ProcessingStatus, duration float64) {
	m.inFlight.Dec()
	m.runsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.runDuration.WithLabelValues(m.service, string(status)).Observe(duration)
}

func (m *PipelineMetrics) ObserveStage(stage string, duration float64) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration)
}

func (m *PipelineMetrics) FieldRejected(reason domain.RejectReason) {
	m.fieldRejections.WithLabelValues(m.service, string(reason)).Inc()
}

func (m *PipelineMetrics) VisualAnalysis(mode domain.AnalysisMode) {
	m.visualAnalysis.WithLabelValues(m.service, string(mode)).Inc()
}

func (m *PipelineMetrics) SketchFinished(status domain.SketchStatus) {
	m.sketchTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *PipelineMetrics) ObserveQueueLag(seconds float64) {
	if seconds < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(seconds)
}
