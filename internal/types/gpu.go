package types

// GpuInfo is a point-in-time snapshot of the GPU server's device state.
// Snapshots have no persistent identity; every query regenerates one.
type GpuInfo struct {
	DeviceName         string `json:"device_name"`
	MemoryUsedMB       uint64 `json:"memory_used_mb"`
	MemoryTotalMB      uint64 `json:"memory_total_mb"`
	UtilizationPercent uint8  `json:"utilization_percent"`
	TemperatureCelsius uint8  `json:"temperature_celsius"`
	PowerWatts         uint32 `json:"power_watts"`
}

// MemoryUtilization returns used/total memory as a fraction in [0, 1].
func (g *GpuInfo) MemoryUtilization() float64 {
	if g.MemoryTotalMB == 0 {
		return 0
	}
	return float64(g.MemoryUsedMB) / float64(g.MemoryTotalMB)
}

// MemoryAvailableMB returns the remaining device memory in MB.
func (g *GpuInfo) MemoryAvailableMB() uint64 {
	if g.MemoryUsedMB > g.MemoryTotalMB {
		return 0
	}
	return g.MemoryTotalMB - g.MemoryUsedMB
}

// IsHighLoad reports whether the device is near compute or memory saturation.
func (g *GpuInfo) IsHighLoad() bool {
	return g.UtilizationPercent > 80 || g.MemoryUtilization() > 0.9
}

// IsOverheating reports whether the device is past the usual thermal
// throttling point.
func (g *GpuInfo) IsOverheating() bool {
	return g.TemperatureCelsius > 85
}

// HealthScore condenses utilization, memory pressure and temperature
// into a 0.0–1.0 score.
func (g *GpuInfo) HealthScore() float64 {
	score := 1.0

	switch {
	case g.UtilizationPercent > 90:
		score -= 0.3
	case g.UtilizationPercent > 80:
		score -= 0.1
	}

	switch mem := g.MemoryUtilization(); {
	case mem > 0.95:
		score -= 0.3
	case mem > 0.85:
		score -= 0.1
	}

	switch {
	case g.TemperatureCelsius > 85:
		score -= 0.4
	case g.TemperatureCelsius > 75:
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	return score
}

// BenchmarkResult reports throughput measured by the GPU server for one model.
type BenchmarkResult struct {
	Model           string  `json:"model"`
	BatchSize       uint32  `json:"batch_size"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	LatencyMs       float64 `json:"latency_ms"`
	MemoryUsageMB   uint64  `json:"memory_usage_mb"`
}
