package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FilesIngested.Inc()
	m.ContractsArchived.Add(3)
	m.MoveRetries.WithLabelValues("archive").Inc()
	m.MoveRetries.WithLabelValues("expand").Add(2)
	m.BatchDuration.WithLabelValues("lifetime-archiver").Observe(0.05)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesIngested))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ContractsArchived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MoveRetries.WithLabelValues("archive")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MoveRetries.WithLabelValues("expand")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP option_pipeline_ingest_files_total Total number of snapshot files ingested
# TYPE option_pipeline_ingest_files_total counter
option_pipeline_ingest_files_total 1
`), "option_pipeline_ingest_files_total")
	require.NoError(t, err)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	// A second registration on the same registry collides; each registry
	// gets exactly one Metrics instance.
	assert.Panics(t, func() { NewMetrics(reg) })
}
