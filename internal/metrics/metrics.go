// Package metrics 定义服务的Prometheus指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pdfchat"

var (
	// AskTotal 问答次数
	// Labels: result (success, not_ready, error)
	AskTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ask_total",
			Help:      "Total number of questions asked",
		},
		[]string{"result"},
	)

	// AskDuration 单次问答耗时
	AskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ask_duration_seconds",
			Help:      "Duration of question answering in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// IndexBuildTotal 索引构建次数
	// Labels: result (success, error)
	IndexBuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Total number of index builds",
		},
		[]string{"result"},
	)

	// IndexBuildDuration 索引构建耗时
	IndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Duration of document processing and index builds in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// IndexedChunks 每次构建的文本块数量
	IndexedChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks per built index",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 12),
		},
	)

	// ProviderAttempts 第三方服务调用尝试次数
	// Labels: provider, result (success, retryable_error, fatal_error)
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Total number of provider call attempts",
		},
		[]string{"provider", "result"},
	)

	// ActiveSessions 当前会话数量
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live chat sessions",
		},
	)
)

// ObserveAsk 记录一次问答
func ObserveAsk(result string, elapsed time.Duration) {
	AskTotal.WithLabelValues(result).Inc()
	AskDuration.Observe(elapsed.Seconds())
}

// ObserveIndexBuild 记录一次索引构建
func ObserveIndexBuild(result string, chunks int, elapsed time.Duration) {
	IndexBuildTotal.WithLabelValues(result).Inc()
	IndexBuildDuration.Observe(elapsed.Seconds())
	if result == "success" {
		IndexedChunks.Observe(float64(chunks))
	}
}

// ObserveProviderAttempt 记录一次第三方服务调用
func ObserveProviderAttempt(provider, result string) {
	ProviderAttempts.WithLabelValues(provider, result).Inc()
}
