// Package gpu implements the telemetry client for the Vulcan GPU
// server: device snapshots and model benchmarks. The client is
// independent of chat provider selection and can be reconfigured at
// runtime.
package gpu

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Client talks to one Vulcan server's telemetry endpoints.
type Client struct {
	mu      sync.RWMutex
	base    string
	enabled bool
	hc      *http.Client
}

// New creates a disabled client. Configure enables it.
func New() *Client {
	return &Client{
		hc: &http.Client{},
	}
}

// Configure points the client at a server, or disables it entirely.
func (c *Client) Configure(baseURL string, enable bool) error {
	if enable && strings.TrimSpace(baseURL) == "" {
		return types.E(types.CodeInvalidParameter, "gpu base url must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = strings.TrimSuffix(baseURL, "/")
	c.enabled = enable
	return nil
}

// Enabled reports whether GPU telemetry is active.
func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// endpoint returns the base URL, or ProviderUnavailable when disabled.
// No transport is contacted while the client is disabled.
func (c *Client) endpoint() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return "", types.E(types.CodeProviderUnavailable, "gpu acceleration is disabled")
	}
	return c.base, nil
}

// Info queries a fresh device snapshot.
func (c *Client) Info(ctx context.Context) (*types.GpuInfo, error) {
	base, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/gpu/info", nil)
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "build gpu request", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "gpu server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.Errorf(types.CodeProviderUnavailable, "gpu server returned %d", resp.StatusCode)
	}

	var info types.GpuInfo
	if err := decodeBody(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Benchmark runs a throughput benchmark for one model on the server.
// batchSize must be positive; an unknown model fails with InvalidModel.
func (c *Client) Benchmark(ctx context.Context, modelName string, batchSize uint32) (*types.BenchmarkResult, error) {
	if strings.TrimSpace(modelName) == "" {
		return nil, types.E(types.CodeInvalidParameter, "model name must not be empty")
	}
	if batchSize == 0 {
		return nil, types.E(types.CodeInvalidParameter, "batch size must be positive")
	}

	base, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, base+"/v1/gpu/benchmark", benchmarkRequest{
		Model:     modelName,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, types.Errorf(types.CodeInvalidModel, "model %q unknown to gpu server", modelName)
	case resp.StatusCode >= 400:
		return nil, types.Errorf(types.CodeProviderUnavailable, "gpu server returned %d", resp.StatusCode)
	}

	var result types.BenchmarkResult
	if err := decodeBody(resp, &result); err != nil {
		return nil, err
	}
	if result.Model == "" {
		result.Model = modelName
	}
	if result.BatchSize == 0 {
		result.BatchSize = batchSize
	}
	return &result, nil
}

// Health pings the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	base, err := c.endpoint()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return types.Wrap(types.CodeProviderUnavailable, "build gpu request", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return types.Wrap(types.CodeProviderUnavailable, "gpu server unreachable", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.Errorf(types.CodeProviderUnavailable, "gpu server returned %d", resp.StatusCode)
	}
	return nil
}

type benchmarkRequest struct {
	Model     string `json:"model"`
	BatchSize uint32 `json:"batch_size"`
}
