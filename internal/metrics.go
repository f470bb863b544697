package internal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsPrefix = "imgsim"

// Metrics holds the Prometheus collectors of the encoder and the search service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	inferenceDuration *prometheus.HistogramVec
	inferenceImages   prometheus.Counter
	ingested          *prometheus.CounterVec
	batchFallbacks    prometheus.Counter
	indexSize         prometheus.Gauge
	session           *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricsPrefix + "_inference_duration_seconds",
			Help:    "Time spent in a single session run",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"status"}),
		inferenceImages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_inference_images_total",
			Help: "Images sent through the session",
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "_ingested_total",
			Help: "Images ingested into the index, by result",
		}, []string{"result"}),
		batchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_batch_fallbacks_total",
			Help: "Batches re-encoded one image at a time after a batch failure",
		}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "_index_entries",
			Help: "Entries held by the similarity index",
		}),
		session: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricsPrefix + "_session_info",
			Help: "Inference session construction path (always 1)",
		}, []string{"device", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.inferenceDuration, m.inferenceImages, m.ingested, m.batchFallbacks, m.indexSize, m.session,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeSession(init SessionInit) {
	if m == nil {
		return
	}
	m.session.WithLabelValues(string(init.Device), init.Outcome.String()).Set(1)
}

func (m *Metrics) observeInference(images int, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.inferenceDuration.WithLabelValues(status).Observe(d.Seconds())
	if err == nil {
		m.inferenceImages.Add(float64(images))
	}
}

func (m *Metrics) observeIngest(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ingested.WithLabelValues(result).Inc()
}

func (m *Metrics) observeBatchFallback() {
	if m == nil {
		return
	}
	m.batchFallbacks.Inc()
}

func (m *Metrics) setIndexSize(n int) {
	if m == nil {
		return
	}
	m.indexSize.Set(float64(n))
}
