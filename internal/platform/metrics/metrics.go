package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repo_analyst"

// 解析結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeFailure = "failure"
)

// Metrics は解析パイプラインのメトリクスを保持する
type Metrics struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	documentsParsed   prometheus.Histogram
	embeddingFallback prometheus.Counter
	llmFallback       prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

// New は専用レジストリにメトリクスを登録して返す
func New() *Metrics {
	buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "解析リクエストの実行数",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_stage_seconds",
			Help:      "パイプライン各段階の所要時間",
			Buckets:   buckets,
		}, []string{"stage"}),
		documentsParsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_documents",
			Help:      "1回の解析で取り込んだドキュメント数",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		embeddingFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallback_total",
			Help:      "フォールバックEmbeddingに切り替えた回数",
		}),
		llmFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallback_total",
			Help:      "LLM生成をフォールバック文面で代替した回数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTPリクエスト数",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.stageDuration,
		m.documentsParsed,
		m.embeddingFallback,
		m.llmFallback,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry は内部のレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は /metrics 用のハンドラを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun は解析1回の結果を記録する
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// ObserveStage は段階ごとの所要秒数を記録する
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveDocuments は取り込んだドキュメント数を記録する
func (m *Metrics) ObserveDocuments(n int) {
	if m == nil {
		return
	}
	m.documentsParsed.Observe(float64(n))
}

// IncEmbeddingFallback はEmbeddingのフォールバック回数を加算する
func (m *Metrics) IncEmbeddingFallback() {
	if m == nil {
		return
	}
	m.embeddingFallback.Inc()
}

// IncLLMFallback はLLMのフォールバック回数を加算する
func (m *Metrics) IncLLMFallback() {
	if m == nil {
		return
	}
	m.llmFallback.Inc()
}

// ObserveHTTP はHTTPリクエストを記録する
func (m *Metrics) ObserveHTTP(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
