package gpu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-dev/switchboard/internal/types"
)

func newEnabledClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New()
	require.NoError(t, c.Configure(srv.URL, true))
	return c
}

func TestConfigure_EnableWithoutURL(t *testing.T) {
	c := New()
	err := c.Configure("", true)
	assert.Equal(t, types.CodeInvalidParameter, types.CodeOf(err))
	assert.False(t, c.Enabled())
}

func TestConfigure_DisableClearsAccess(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure("http://localhost:9999", true))
	require.NoError(t, c.Configure("", false))
	assert.False(t, c.Enabled())
}

func TestInfo_Disabled(t *testing.T) {
	contacted := false
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))
	require.NoError(t, c.Configure("", false))

	_, err := c.Info(context.Background())
	assert.Equal(t, types.CodeProviderUnavailable, types.CodeOf(err))
	assert.False(t, contacted, "disabled client must not touch the network")
}

func TestInfo_Snapshot(t *testing.T) {
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/gpu/info", r.URL.Path)
		json.NewEncoder(w).Encode(types.GpuInfo{
			DeviceName:         "RTX 4090",
			MemoryUsedMB:       8192,
			MemoryTotalMB:      24576,
			UtilizationPercent: 45,
			TemperatureCelsius: 62,
			PowerWatts:         280,
		})
	}))

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RTX 4090", info.DeviceName)
	assert.InDelta(t, 1.0/3.0, info.MemoryUtilization(), 0.001)
	assert.False(t, info.IsHighLoad())
	assert.False(t, info.IsOverheating())
	assert.Equal(t, uint64(16384), info.MemoryAvailableMB())
}

func TestInfo_ServerUnreachable(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure("http://127.0.0.1:1", true))

	_, err := c.Info(context.Background())
	assert.Equal(t, types.CodeProviderUnavailable, types.CodeOf(err))
}

func TestBenchmark_Result(t *testing.T) {
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/gpu/benchmark", r.URL.Path)

		var req benchmarkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, uint32(8), req.BatchSize)

		json.NewEncoder(w).Encode(types.BenchmarkResult{
			Model:           "llama3",
			BatchSize:       8,
			TokensPerSecond: 142.5,
			LatencyMs:       7.0,
			MemoryUsageMB:   6144,
		})
	}))

	res, err := c.Benchmark(context.Background(), "llama3", 8)
	require.NoError(t, err)
	assert.Equal(t, 142.5, res.TokensPerSecond)
	assert.Equal(t, uint64(6144), res.MemoryUsageMB)
}

func TestBenchmark_UnknownModel(t *testing.T) {
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Benchmark(context.Background(), "no-such-model", 1)
	assert.Equal(t, types.CodeInvalidModel, types.CodeOf(err))
}

func TestBenchmark_ZeroBatchSize(t *testing.T) {
	contacted := false
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))

	_, err := c.Benchmark(context.Background(), "llama3", 0)
	assert.Equal(t, types.CodeInvalidParameter, types.CodeOf(err))
	assert.False(t, contacted, "parameter validation must precede any request")
}

func TestBenchmark_EmptyModel(t *testing.T) {
	c := New()
	_, err := c.Benchmark(context.Background(), "  ", 4)
	assert.Equal(t, types.CodeInvalidParameter, types.CodeOf(err))
}

func TestHealth(t *testing.T) {
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth_ServerError(t *testing.T) {
	c := newEnabledClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	err := c.Health(context.Background())
	assert.Equal(t, types.CodeProviderUnavailable, types.CodeOf(err))
}

func TestGpuInfo_HealthScore(t *testing.T) {
	healthy := &types.GpuInfo{UtilizationPercent: 40, MemoryUsedMB: 4000, MemoryTotalMB: 24000, TemperatureCelsius: 55}
	assert.Equal(t, 1.0, healthy.HealthScore())

	stressed := &types.GpuInfo{UtilizationPercent: 95, MemoryUsedMB: 23500, MemoryTotalMB: 24000, TemperatureCelsius: 90}
	assert.InDelta(t, 0.0, stressed.HealthScore(), 0.001)
	assert.True(t, stressed.IsHighLoad())
	assert.True(t, stressed.IsOverheating())
}
