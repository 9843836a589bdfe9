package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMutationCountsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(mutations.WithLabelValues("check_in", OutcomeFailure))
	RecordMutation("check_in", errors.New("boom"))
	RecordMutation("check_in", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(mutations.WithLabelValues("check_in", OutcomeFailure)))
}

func TestRecordSnapshotSetsGauges(t *testing.T) {
	loaded := time.Unix(1704880800, 0)
	RecordSnapshot("goal", 2, loaded)
	assert.Equal(t, 2.0, testutil.ToFloat64(collectionItems.WithLabelValues("goal")))
	assert.Equal(t, float64(loaded.Unix()), testutil.ToFloat64(lastLoadGauge.WithLabelValues("goal")))
}

func TestObserveStoreCallRecordsLatency(t *testing.T) {
	ObserveStoreCall("goals", "list", time.Now().Add(-50*time.Millisecond), nil)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, family := range families {
		if family.GetName() != "habitsync_store_request_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue(metric, "collection") == "goals" && labelValue(metric, "op") == "list" {
				hist = metric.GetHistogram()
			}
		}
	}
	require.NotNil(t, hist)
	assert.GreaterOrEqual(t, hist.GetSampleCount(), uint64(1))
	assert.GreaterOrEqual(t, hist.GetSampleSum(), 0.05)
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
