package types

// ProviderStatus is a consistent point-in-time view of one provider entry.
type ProviderStatus struct {
	Provider          Provider `json:"provider"`
	IsHealthy         bool     `json:"is_healthy"`
	ResponseTimeMs    uint32   `json:"response_time_ms"`
	ErrorRate         float32  `json:"error_rate"`
	RequestsPerMinute uint32   `json:"requests_per_minute"`
}
