package switchboard

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/switchboard-dev/switchboard/internal/config"
	"github.com/switchboard-dev/switchboard/internal/metrics"
	"github.com/switchboard-dev/switchboard/internal/router"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// Chat sends a single synchronous chat request. The active provider
// serves it when healthy; with fallback enabled, a transport failure
// moves on to the next healthy provider, at most one attempt each.
// Response.ProviderUsed names whoever actually answered.
func (i *Instance) Chat(ctx context.Context, message string) (*Response, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, i.fail(types.E(types.CodeInvalidParameter, "message must not be empty"))
	}

	cfg := i.snapshot()
	requestID := uuid.NewString()
	log := i.log.With("request_id", requestID)

	if resp, ok := i.cacheGet(cfg, message, requestID); ok {
		metrics.RequestsTotal.WithLabelValues(resp.ProviderUsed.String(), "cache_hit").Inc()
		log.Debug("cache hit", "provider", resp.ProviderUsed.String())
		return resp, nil
	}

	messages := []Message{types.UserMessage(message)}

	entry, err := i.router.SelectForRequest()
	if err != nil {
		return nil, i.fail(err)
	}

	tried := make(map[Provider]bool)
	for {
		tried[entry.Provider] = true

		resp, err := i.attempt(ctx, entry, cfg, requestID, messages)
		if err == nil {
			if len(tried) > 1 {
				metrics.FailoversTotal.Inc()
				log.Info("request served by fallback provider", "provider", entry.Provider.String())
			}
			i.cacheSet(cfg, message, resp)
			return resp, nil
		}

		if !failoverEligible(err) || !cfg.EnableFallback {
			return nil, i.fail(err)
		}

		next := i.router.NextHealthy(tried)
		if next == nil {
			log.Warn("all providers exhausted", "last_provider", entry.Provider.String())
			return nil, i.fail(err)
		}
		log.Warn("provider failed, trying next",
			"provider", entry.Provider.String(),
			"next", next.Provider.String(),
			"error", err.Error(),
		)
		entry = next
	}
}

// ChatAsync runs Chat on its own goroutine and invokes cb exactly once
// with the outcome. Close waits for all pending async calls.
func (i *Instance) ChatAsync(ctx context.Context, message string, cb ResponseFunc) error {
	if err := i.guard(); err != nil {
		return err
	}
	if cb == nil {
		return i.fail(types.E(types.CodeInvalidParameter, "callback must not be nil"))
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		cb(i.Chat(ctx, message))
	}()
	return nil
}

// attempt runs one request against one provider and folds the outcome
// into its health snapshot. Auth and token-exchange failures are
// surfaced without touching health: the provider is not down, the
// caller's credential is.
func (i *Instance) attempt(ctx context.Context, entry *router.Entry, cfg config.Config, requestID string, messages []Message) (*Response, error) {
	p := entry.Provider

	cred, err := i.creds.Ensure(ctx, p, entry.Transport)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Messages:    messages,
		Model:       cfg.ModelName,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Token:       cred.Token,
	}
	if p == cfg.Provider {
		req.BaseURL = cfg.BaseURL
	}

	tctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	start := time.Now()
	comp, err := entry.Transport.Send(tctx, req)
	elapsed := time.Since(start)

	if err != nil {
		if transportFailure(err) {
			i.router.RecordOutcome(p, false, elapsed)
			metrics.ObserveRequest(p.String(), "error", elapsed)
		}
		return nil, err
	}

	i.router.RecordOutcome(p, true, elapsed)
	metrics.ObserveRequest(p.String(), "success", elapsed)

	return i.buildResponse(comp.Content, comp.Usage, p, cfg.ModelName, requestID, messages, elapsed), nil
}

func (i *Instance) buildResponse(content string, usage *Usage, p Provider, model, requestID string, messages []Message, elapsed time.Duration) *Response {
	resp := &Response{
		Content:        content,
		ProviderUsed:   p,
		ResponseTimeMs: uint32(elapsed.Milliseconds()),
		RequestID:      requestID,
		Usage:          usage,
	}
	if usage != nil && usage.TotalTokens > 0 {
		resp.TokensUsed = usage.TotalTokens
		return resp
	}

	// Local backends often omit usage; estimate with the tokenizer.
	prompt, perr := i.tok.CountMessages(messages, model)
	completion, cerr := i.tok.CountText(content, model)
	if perr == nil && cerr == nil {
		resp.TokensUsed = uint32(prompt + completion)
		resp.Usage = &Usage{
			PromptTokens:     uint32(prompt),
			CompletionTokens: uint32(completion),
			TotalTokens:      uint32(prompt + completion),
		}
	}
	return resp
}

// transportFailure reports whether err reflects the provider's wire
// behavior rather than the caller's parameters or credentials. Only
// these outcomes move the health needle.
func transportFailure(err error) bool {
	switch types.CodeOf(err) {
	case types.CodeNetworkError, types.CodeUnexpectedResponse, types.CodeStreamingFailed:
		return true
	}
	return false
}

// failoverEligible reports whether a failure justifies trying another
// provider. Bad credentials or a bad model would fail everywhere the
// same way, so they are returned to the caller directly.
func failoverEligible(err error) bool {
	switch types.CodeOf(err) {
	case types.CodeNetworkError, types.CodeUnexpectedResponse:
		return true
	}
	return false
}

func (i *Instance) cacheKey(p Provider, model, message string) string {
	return p.String() + "\x00" + model + "\x00" + message
}

func (i *Instance) cacheGet(cfg config.Config, message, requestID string) (*Response, bool) {
	if i.cache == nil {
		return nil, false
	}
	cached, ok := i.cache.Get(i.cacheKey(i.router.Current(), cfg.ModelName, message))
	if !ok || cached == nil {
		return nil, false
	}
	// The copy answers this call, so it carries this call's request id
	// and no elapsed time of its own.
	resp := *cached
	resp.RequestID = requestID
	resp.ResponseTimeMs = 0
	return &resp, true
}

func (i *Instance) cacheSet(cfg config.Config, message string, resp *Response) {
	if i.cache == nil {
		return
	}
	key := i.cacheKey(resp.ProviderUsed, cfg.ModelName, message)
	i.cache.SetWithTTL(key, resp, int64(len(resp.Content)), cfg.CacheTTL())
}
