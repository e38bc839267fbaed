package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service. All collectors
// register with the default registry and are served by the /metrics handler.
type Metrics struct {
	// HTTPRequestDuration measures HTTP request latency in seconds.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DocumentsIngested counts completed ingestions.
	// Labels: model, status (success|error)
	DocumentsIngested *prometheus.CounterVec

	// ChunksIngested counts chunks written to the vector store.
	// Labels: model
	ChunksIngested *prometheus.CounterVec

	// RetrievalDuration measures end-to-end retrieval latency in seconds.
	// Labels: model
	RetrievalDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM completion latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM completions, fallbacks included.
	// Labels: provider, model, status (success|error|fallback)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus collectors. Call once at
// process start; a second call panics on duplicate registration.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notabene_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notabene_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DocumentsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notabene_documents_ingested_total",
				Help: "Total number of document ingestions by embedding model and status",
			},
			[]string{"model", "status"},
		),

		ChunksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notabene_chunks_ingested_total",
				Help: "Total number of chunks written to the vector store",
			},
			[]string{"model"},
		),

		RetrievalDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notabene_retrieval_duration_seconds",
				Help:    "Duration of retrieval requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"model"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notabene_llm_request_duration_seconds",
				Help:    "Duration of LLM completion requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notabene_llm_requests_total",
				Help: "Total number of LLM completions by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notabene_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
	}
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordIngest records a completed or failed document ingestion.
func (m *Metrics) RecordIngest(model, status string, chunks int) {
	m.DocumentsIngested.WithLabelValues(model, status).Inc()
	if chunks > 0 {
		m.ChunksIngested.WithLabelValues(model).Add(float64(chunks))
	}
}

// RecordRetrieval records retrieval latency for one request.
func (m *Metrics) RecordRetrieval(model string, durationSeconds float64) {
	m.RetrievalDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for one LLM completion request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}
