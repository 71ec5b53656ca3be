package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results and retrieval outcomes used as label values.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"

	OutcomeServed      = "served"
	OutcomeMalformed   = "malformed"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeEncodeError = "encode_error"

	TickPublished = "published"
	TickSkipped   = "skipped"
	TickFailed    = "failed"
)

var (
	// Frame store metrics
	cacheFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framecast_cache_frames",
		Help: "Number of frames currently held in the frame store",
	})

	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecast_cache_evictions_total",
		Help: "Frames evicted from the frame store",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_cache_lookups_total",
		Help: "Frame store lookups by result",
	}, []string{"result"})

	// Retrieval metrics
	retrievalRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_retrieval_requests_total",
		Help: "Frame retrieval requests by transport and outcome",
	}, []string{"transport", "outcome"})

	retrievalReplyBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framecast_retrieval_reply_bytes",
		Help:    "Size of JPEG replies in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KiB to 2MiB
	})

	retrievalEncodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framecast_retrieval_encode_seconds",
		Help:    "Time spent resizing and JPEG encoding a frame",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// Pipeline metrics
	pipelineTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_pipeline_ticks_total",
		Help: "Capture loop ticks by result",
	}, []string{"result"})

	pipelineFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecast_pipeline_frames_total",
		Help: "Frames read from the video source",
	})

	pipelineDetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecast_pipeline_detections_total",
		Help: "Detections published after confidence filtering",
	})

	pipelineInferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framecast_pipeline_inference_seconds",
		Help:    "Detector latency per batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	captureRewindsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecast_capture_rewinds_total",
		Help: "Times the video source was rewound after end of stream",
	})

	// Bus metrics
	busPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_bus_publish_total",
		Help: "Bus publishes by subject and result",
	}, []string{"subject", "result"})
)

// SetCacheFrames records the current frame store size.
func SetCacheFrames(n int) {
	cacheFrames.Set(float64(n))
}

func IncrementCacheEvictions() {
	cacheEvictionsTotal.Inc()
}

// RecordCacheLookup counts a hit or a miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues(ResultHit).Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues(ResultMiss).Inc()
}

// RecordRetrieval counts a retrieval request and, when served, its reply size.
func RecordRetrieval(transport, outcome string, replyBytes int) {
	retrievalRequestsTotal.WithLabelValues(transport, outcome).Inc()
	if outcome == OutcomeServed {
		retrievalReplyBytes.Observe(float64(replyBytes))
	}
}

func ObserveEncode(d time.Duration) {
	retrievalEncodeSeconds.Observe(d.Seconds())
}

// RecordTick counts a capture loop tick by result.
func RecordTick(result string) {
	pipelineTicksTotal.WithLabelValues(result).Inc()
}

func AddFramesCaptured(n int) {
	pipelineFramesTotal.Add(float64(n))
}

func AddDetections(n int) {
	pipelineDetectionsTotal.Add(float64(n))
}

func ObserveInference(d time.Duration) {
	pipelineInferenceSeconds.Observe(d.Seconds())
}

func IncrementCaptureRewinds() {
	captureRewindsTotal.Inc()
}

// RecordPublish counts a bus publish; err != nil counts as a drop.
func RecordPublish(subject string, err error) {
	result := "ok"
	if err != nil {
		result = "dropped"
	}
	busPublishTotal.WithLabelValues(subject, result).Inc()
}
