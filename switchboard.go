package switchboard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/switchboard-dev/switchboard/internal/auth"
	"github.com/switchboard-dev/switchboard/internal/config"
	"github.com/switchboard-dev/switchboard/internal/gpu"
	"github.com/switchboard-dev/switchboard/internal/router"
	"github.com/switchboard-dev/switchboard/internal/stream"
	"github.com/switchboard-dev/switchboard/internal/tokenizer"
	"github.com/switchboard-dev/switchboard/internal/transport"
	"github.com/switchboard-dev/switchboard/internal/types"
	"github.com/switchboard-dev/switchboard/internal/vault"
	"github.com/switchboard-dev/switchboard/internal/version"
)

// Re-exported domain types. The internal packages own the definitions;
// these aliases are the public names.
type (
	Provider        = types.Provider
	Code            = types.Code
	Error           = types.Error
	Message         = types.Message
	Usage           = types.Usage
	Response        = types.Response
	StreamChunk     = types.StreamChunk
	GpuInfo         = types.GpuInfo
	BenchmarkResult = types.BenchmarkResult
	ProviderStatus  = types.ProviderStatus
	Config          = config.Config

	// Transport is the per-provider wire capability. Custom backends
	// can be injected with WithTransports.
	Transport   = transport.Transport
	Request     = transport.Request
	Completion  = transport.Completion
	StreamEvent = transport.StreamEvent
	Token       = transport.Token
)

// Provider variants, in ABI order.
const (
	ProviderCopilot = types.ProviderCopilot
	ProviderClaude  = types.ProviderClaude
	ProviderOpenAI  = types.ProviderOpenAI
	ProviderOllama  = types.ProviderOllama
	ProviderVulcan  = types.ProviderVulcan
)

// Error codes, matching the ABI values.
const (
	CodeSuccess              = types.CodeSuccess
	CodeInitializationFailed = types.CodeInitializationFailed
	CodeAuthenticationFailed = types.CodeAuthenticationFailed
	CodeConfigLoadFailed     = types.CodeConfigLoadFailed
	CodeNetworkError         = types.CodeNetworkError
	CodeInvalidModel         = types.CodeInvalidModel
	CodeTokenExchangeFailed  = types.CodeTokenExchangeFailed
	CodeUnexpectedResponse   = types.CodeUnexpectedResponse
	CodeMemoryError          = types.CodeMemoryError
	CodeInvalidParameter     = types.CodeInvalidParameter
	CodeProviderUnavailable  = types.CodeProviderUnavailable
	CodeStreamingFailed      = types.CodeStreamingFailed
)

// CodeOf extracts the error code from any error returned by this
// package. A nil error maps to CodeSuccess.
func CodeOf(err error) Code { return types.CodeOf(err) }

// ParseProvider resolves a provider name ("openai", "claude", ...).
func ParseProvider(name string) (Provider, error) { return types.ParseProvider(name) }

// LoadConfig reads a TOML configuration file. The returned config is
// already normalized and validated.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string { return config.DefaultConfigPath() }

// Version returns the library version string.
func Version() string { return version.Version }

// StreamFunc receives one chunk of a streaming response. Chunks arrive
// in order on a single goroutine; the final chunk has IsFinal set.
type StreamFunc func(StreamChunk)

// ResponseFunc receives the outcome of an asynchronous chat call,
// exactly once.
type ResponseFunc func(*Response, error)

// Option customizes instance construction.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	transports map[Provider]Transport
	vaultPath  string
}

// WithLogger sets the instance logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransports replaces the built-in provider transports. Providers
// absent from the map are not registered.
func WithTransports(transports map[Provider]Transport) Option {
	return func(o *options) { o.transports = transports }
}

// WithVault enables the encrypted credential vault at path, overriding
// Config.VaultPath.
func WithVault(path string) Option {
	return func(o *options) { o.vaultPath = path }
}

// Instance is an initialized gateway. Create with New, release with
// Close. All methods are safe for concurrent use.
type Instance struct {
	mu  sync.RWMutex // guards cfg
	cfg config.Config

	log    *slog.Logger
	router *router.Router
	creds  *auth.Store
	gpu    *gpu.Client
	tok    *tokenizer.Counter
	cache  *ristretto.Cache[string, *types.Response] // nil when caching is off
	vault  *vault.Vault                              // nil when no vault path is set

	lastErr atomic.Value // string

	sessMu   sync.Mutex
	sessions map[uint64]*stream.Session

	closed atomic.Bool
	wg     sync.WaitGroup
}

// New validates the configuration and builds a gateway instance.
// Construction failures carry CodeInitializationFailed; the wrapped
// cause keeps the specific code for errors.As inspection.
func New(cfg Config, opts ...Option) (*Instance, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, types.Wrap(types.CodeInitializationFailed, "invalid configuration", err)
	}
	if o.vaultPath != "" {
		cfg.VaultPath = o.vaultPath
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transports := o.transports
	if transports == nil {
		ollamaURL, vulcanURL := config.DefaultOllamaURL, config.DefaultVulcanURL
		switch cfg.Provider {
		case ProviderOllama:
			ollamaURL = cfg.BaseURL
		case ProviderVulcan:
			vulcanURL = cfg.BaseURL
		}
		transports = transport.Defaults(ollamaURL, vulcanURL)
	}

	enabled := make(map[Provider]bool, len(transports))
	for p := range transports {
		enabled[p] = true
	}

	rt, err := router.New(transports, cfg.Provider, cfg.EnableFallback, enabled)
	if err != nil {
		return nil, types.Wrap(types.CodeInitializationFailed, "router setup", err)
	}

	inst := &Instance{
		cfg:      cfg,
		log:      logger,
		router:   rt,
		creds:    auth.NewStore(),
		gpu:      gpu.New(),
		tok:      tokenizer.New(),
		sessions: make(map[uint64]*stream.Session),
	}
	inst.lastErr.Store("")

	if cfg.VaultPath != "" {
		if cfg.VaultPath == config.DefaultVaultPath() {
			if err := config.EnsureDataDir(); err != nil {
				return nil, types.Wrap(types.CodeInitializationFailed, "create data dir", err)
			}
		}
		v, err := vault.Open(cfg.VaultPath)
		if err != nil {
			return nil, types.Wrap(types.CodeInitializationFailed, "open credential vault", err)
		}
		stored, err := v.LoadAll()
		if err != nil {
			v.Close()
			return nil, types.Wrap(types.CodeInitializationFailed, "load credential vault", err)
		}
		for p, c := range stored {
			if err := inst.creds.SetCredential(p, c); err != nil {
				v.Close()
				return nil, err
			}
		}
		// Wired after the initial load so loading does not rewrite rows.
		inst.creds.SetPersister(v)
		inst.vault = v
	}

	if cfg.APIKey != "" {
		if err := inst.creds.SetToken(cfg.Provider, cfg.APIKey); err != nil {
			inst.teardown()
			return nil, err
		}
	}

	if cfg.EnableGPU {
		vulcanURL := cfg.BaseURL
		if cfg.Provider != ProviderVulcan {
			vulcanURL = config.DefaultVulcanURL
		}
		if err := inst.gpu.Configure(vulcanURL, true); err != nil {
			inst.teardown()
			return nil, types.Wrap(types.CodeInitializationFailed, "gpu setup", err)
		}
	}

	if cfg.CacheTTLMs > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, *types.Response]{
			NumCounters: 1e5,
			MaxCost:     1 << 26,
			BufferItems: 64,
		})
		if err != nil {
			inst.teardown()
			return nil, types.Wrap(types.CodeInitializationFailed, "response cache setup", err)
		}
		inst.cache = cache
	}

	logger.Info("instance initialized",
		"provider", cfg.Provider.String(),
		"model", cfg.ModelName,
		"fallback", cfg.EnableFallback,
		"gpu", cfg.EnableGPU,
	)
	return inst, nil
}

// Close releases the instance: cancels in-flight streams, waits for
// async calls, and closes the cache and vault. Idempotent.
func (i *Instance) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}

	i.sessMu.Lock()
	for _, s := range i.sessions {
		s.Cancel()
	}
	i.sessMu.Unlock()

	i.wg.Wait()
	i.teardown()
	i.log.Info("instance closed")
	return nil
}

func (i *Instance) teardown() {
	if i.cache != nil {
		i.cache.Close()
	}
	if i.vault != nil {
		i.vault.Close()
	}
}

// LastError returns the message of the most recent failing call on
// this instance, or the empty string.
func (i *Instance) LastError() string {
	s, _ := i.lastErr.Load().(string)
	return s
}

// fail records err as the instance's last error and returns it.
func (i *Instance) fail(err error) error {
	if err != nil {
		i.lastErr.Store(err.Error())
	}
	return err
}

// guard rejects calls on a closed instance.
func (i *Instance) guard() error {
	if i.closed.Load() {
		return i.fail(types.E(types.CodeInvalidParameter, "instance is closed"))
	}
	return nil
}

// snapshot returns an immutable copy of the current configuration.
func (i *Instance) snapshot() config.Config {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg.Snapshot()
}

// ReloadConfig replaces the active configuration. Requests already in
// flight keep the snapshot they started with; the next request sees the
// new values. Provider selection, fallback policy and GPU state follow
// the new configuration. The vault path and response-cache wiring are
// fixed at construction and ignored here.
func (i *Instance) ReloadConfig(cfg Config) error {
	if err := i.guard(); err != nil {
		return err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return i.fail(err)
	}

	prev := i.router.Current()
	if err := i.router.Switch(cfg.Provider); err != nil {
		return i.fail(err)
	}

	// Any later failure restores the previous provider so a rejected
	// reload never leaves the instance half-applied.
	if cfg.APIKey != "" {
		if err := i.creds.SetToken(cfg.Provider, cfg.APIKey); err != nil {
			i.router.Switch(prev)
			return i.fail(err)
		}
	}

	if cfg.EnableGPU != i.gpu.Enabled() {
		vulcanURL := cfg.BaseURL
		if cfg.Provider != ProviderVulcan {
			vulcanURL = config.DefaultVulcanURL
		}
		if err := i.gpu.Configure(vulcanURL, cfg.EnableGPU); err != nil {
			i.router.Switch(prev)
			return i.fail(err)
		}
	}

	i.router.SetFallback(cfg.EnableFallback)

	i.mu.Lock()
	cfg.VaultPath = i.cfg.VaultPath
	cfg.CacheTTLMs = i.cfg.CacheTTLMs
	i.cfg = cfg
	i.mu.Unlock()

	i.log.Info("configuration reloaded",
		"provider", cfg.Provider.String(),
		"model", cfg.ModelName,
		"fallback", cfg.EnableFallback,
	)
	return nil
}

// HealthCheck verifies the instance can serve requests: the active
// provider must be selectable and answer an auth probe, and the GPU
// sidecar must respond when enabled. The returned error names the
// failing component.
func (i *Instance) HealthCheck(ctx context.Context) error {
	if err := i.guard(); err != nil {
		return err
	}
	cfg := i.snapshot()

	cur := i.router.Current()
	entry, ok := i.router.Lookup(cur)
	if !ok {
		return i.fail(types.Errorf(types.CodeProviderUnavailable, "provider %s is not registered", cur))
	}
	for _, st := range i.router.Status() {
		if st.Provider == cur && !st.IsHealthy {
			return i.fail(types.Errorf(types.CodeProviderUnavailable, "provider %s is unhealthy", cur))
		}
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	if err := i.creds.TestAuth(pctx, cur, entry.Transport); err != nil {
		return i.fail(types.Wrap(types.CodeProviderUnavailable, "provider "+cur.String()+" failed health probe", err))
	}

	if i.gpu.Enabled() {
		if err := i.gpu.Health(pctx); err != nil {
			return i.fail(err)
		}
	}
	return nil
}
