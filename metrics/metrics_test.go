package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"manifold_lib/stats"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRow(t *testing.T) {
	c := New()
	c.ObserveRow("train", stats.Row{Loss: 0.7, Gradient: 0.01}.Values(stats.TrainColumns))
	c.ObserveRow("test", stats.Row{Loss: 0.9}.Values(stats.TestColumns))

	assert.Equal(t, 0.7, testutil.ToFloat64(c.statistic.WithLabelValues("train", "loss")))
	assert.Equal(t, 0.01, testutil.ToFloat64(c.statistic.WithLabelValues("train", "gradient")))
	assert.Equal(t, 0.9, testutil.ToFloat64(c.statistic.WithLabelValues("test", "loss")))
	assert.Equal(t, stats.TrainColumns+stats.TestColumns, testutil.CollectAndCount(c.statistic))
}

func TestCounters(t *testing.T) {
	c := New()
	c.BatchDone()
	c.BatchDone()
	c.EpochDone(3)
	c.ObserveAttack("pixel", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.batches))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.epoch))
	assert.Equal(t, 1, testutil.CollectAndCount(c.attackSeconds))
}

func TestHandler(t *testing.T) {
	c := New()
	c.BatchDone()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "manifold_training_batches_total 1"))
}
