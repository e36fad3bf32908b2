package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.ObserveRun(OutcomeSuccess)
	m.ObserveRun(OutcomeSuccess)
	m.ObserveRun(OutcomeFailure)
	m.IncLLMFallback()
	m.ObserveStage("parse", 0.2)
	m.ObserveDocuments(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmFallback))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "repo_analyst_analysis_runs_total")
	assert.Contains(t, rec.Body.String(), "repo_analyst_analysis_stage_seconds")
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(OutcomeSuccess)
		m.ObserveStage("fetch", 1)
		m.ObserveDocuments(1)
		m.IncEmbeddingFallback()
		m.IncLLMFallback()
		m.ObserveHTTP("GET", "/health", "200")
	})
}
