package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/creditiq/feature"
)

func TestCollector(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObservePrediction("Medium Risk")
	c.ObservePrediction("Medium Risk")
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCacheWrite(errors.New("redis down"))
	c.ObserveArtifactLoad(time.Millisecond, errors.New("missing"))
	c.ObserveArtifactLoad(time.Millisecond, nil)
	c.ObserveInference("gbdt", time.Microsecond, nil)
	c.ObserveHTTP(http.MethodPost, "/api/predict", http.StatusOK, time.Millisecond)
	c.RecordReconcile(context.Background(), feature.ReconcileStats{Used: 1, Missing: []string{"a", "b"}, Unknown: []string{"x"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.predictionsTotal.WithLabelValues("Medium Risk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.artifactLoads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.artifactLoads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.featuresUnknown))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues(http.MethodPost, "/api/predict", "200")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "creditiq_scoring_predictions_total")
}

func TestNew_DefaultRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)
	assert.NotSame(t, a, b)
}
