package switchboard

import (
	"context"
)

// InitGPU points the instance at a Vulcan GPU server. Enabling with an
// empty baseURL is CodeInvalidParameter; disabling always succeeds and
// makes the other GPU calls return CodeProviderUnavailable without any
// network traffic.
func (i *Instance) InitGPU(baseURL string, enable bool) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.gpu.Configure(baseURL, enable); err != nil {
		return i.fail(err)
	}

	i.mu.Lock()
	i.cfg.EnableGPU = enable
	i.mu.Unlock()

	i.log.Info("gpu acceleration configured", "enabled", enable, "base_url", baseURL)
	return nil
}

// GPUInfo returns the GPU server's live telemetry.
func (i *Instance) GPUInfo(ctx context.Context) (*GpuInfo, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	info, err := i.gpu.Info(ctx)
	if err != nil {
		return nil, i.fail(err)
	}
	return info, nil
}

// Benchmark runs a model benchmark on the GPU server. batchSize must be
// positive; an unknown model is CodeInvalidModel.
func (i *Instance) Benchmark(ctx context.Context, model string, batchSize uint32) (*BenchmarkResult, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	res, err := i.gpu.Benchmark(ctx, model, batchSize)
	if err != nil {
		return nil, i.fail(err)
	}
	return res, nil
}
