package models

import "time"

// SystemMetrics is a point-in-time summary of engine instrumentation.
type SystemMetrics struct {
	CacheHitRatio             float64   `json:"cache_hit_ratio"`
	CacheHits                 uint64    `json:"cache_hits"`
	CacheMisses               uint64    `json:"cache_misses"`
	RequestsTotal             uint64    `json:"requests_total"`
	UpstreamRequests          uint64    `json:"upstream_requests"`
	UpstreamFailures          uint64    `json:"upstream_failures"`
	UpstreamFallbacks         uint64    `json:"upstream_fallbacks"`
	AverageUpstreamDurationMs float64   `json:"average_upstream_duration_ms"`
	DiscardedFetches          uint64    `json:"discarded_fetches"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generated_at"`
}
