package metrics

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

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestCacheMetrics(t *testing.T) {
	SetCacheFrames(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(cacheFrames))

	evictions := testutil.ToFloat64(cacheEvictionsTotal)
	IncrementCacheEvictions()
	assert.Equal(t, evictions+1, testutil.ToFloat64(cacheEvictionsTotal))

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues(ResultHit))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues(ResultMiss))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues(ResultHit)))
	assert.Equal(t, misses+2, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues(ResultMiss)))
}

func TestRecordRetrieval(t *testing.T) {
	tests := []struct {
		name        string
		outcome     string
		wantObserve bool
	}{
		{"served observes size", OutcomeServed, true},
		{"miss does not observe size", OutcomeNotFound, false},
		{"malformed", OutcomeMalformed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := retrievalRequestsTotal.WithLabelValues("bus", tt.outcome)
			before := testutil.ToFloat64(counter)
			sizes := histogramCount(t, retrievalReplyBytes)

			RecordRetrieval("bus", tt.outcome, 4096)

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
			want := sizes
			if tt.wantObserve {
				want++
			}
			assert.Equal(t, want, histogramCount(t, retrievalReplyBytes))
		})
	}
}

func TestPipelineMetrics(t *testing.T) {
	skipped := testutil.ToFloat64(pipelineTicksTotal.WithLabelValues(TickSkipped))
	RecordTick(TickSkipped)
	assert.Equal(t, skipped+1, testutil.ToFloat64(pipelineTicksTotal.WithLabelValues(TickSkipped)))

	frames := testutil.ToFloat64(pipelineFramesTotal)
	AddFramesCaptured(4)
	assert.Equal(t, frames+4, testutil.ToFloat64(pipelineFramesTotal))

	dets := testutil.ToFloat64(pipelineDetectionsTotal)
	AddDetections(3)
	assert.Equal(t, dets+3, testutil.ToFloat64(pipelineDetectionsTotal))

	inf := histogramCount(t, pipelineInferenceSeconds)
	ObserveInference(15 * time.Millisecond)
	assert.Equal(t, inf+1, histogramCount(t, pipelineInferenceSeconds))

	enc := histogramCount(t, retrievalEncodeSeconds)
	ObserveEncode(2 * time.Millisecond)
	assert.Equal(t, enc+1, histogramCount(t, retrievalEncodeSeconds))

	rewinds := testutil.ToFloat64(captureRewindsTotal)
	IncrementCaptureRewinds()
	assert.Equal(t, rewinds+1, testutil.ToFloat64(captureRewindsTotal))
}

func TestRecordPublish(t *testing.T) {
	ok := testutil.ToFloat64(busPublishTotal.WithLabelValues("detections", "ok"))
	dropped := testutil.ToFloat64(busPublishTotal.WithLabelValues("detections", "dropped"))

	RecordPublish("detections", nil)
	RecordPublish("detections", errors.New("nats: connection closed"))

	assert.Equal(t, ok+1, testutil.ToFloat64(busPublishTotal.WithLabelValues("detections", "ok")))
	assert.Equal(t, dropped+1, testutil.ToFloat64(busPublishTotal.WithLabelValues("detections", "dropped")))
}
