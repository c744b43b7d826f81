package switchboard

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/switchboard-dev/switchboard/internal/metrics"
	"github.com/switchboard-dev/switchboard/internal/router"
	"github.com/switchboard-dev/switchboard/internal/stream"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// ChatStream sends a streaming chat request, invoking onChunk for every
// chunk in order on a single goroutine. The final chunk has IsFinal set
// and is delivered exactly once; nothing follows it.
//
// Failover applies only to opening the stream. Once the provider has
// started answering, a mid-stream failure is reported as
// CodeStreamingFailed rather than silently re-asked elsewhere, since
// chunks already delivered cannot be taken back.
//
// Cancelling ctx (or closing the instance) stops delivery between
// chunks and is not an error.
func (i *Instance) ChatStream(ctx context.Context, message string, onChunk StreamFunc) error {
	if err := i.guard(); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return i.fail(types.E(types.CodeInvalidParameter, "message must not be empty"))
	}
	if onChunk == nil {
		return i.fail(types.E(types.CodeInvalidParameter, "chunk callback must not be nil"))
	}

	cfg := i.snapshot()
	requestID := uuid.NewString()
	log := i.log.With("request_id", requestID)

	messages := []Message{types.UserMessage(message)}

	entry, err := i.router.SelectForRequest()
	if err != nil {
		return i.fail(err)
	}

	// Close() cancels the session through the registry.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := stream.NewSession(cancel)
	i.registerSession(sess)
	defer i.unregisterSession(sess)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	tried := make(map[Provider]bool)
	var events <-chan StreamEvent
	for {
		tried[entry.Provider] = true

		events, err = i.openStream(sctx, entry, cfg, messages)
		if err == nil {
			break
		}
		if !failoverEligible(err) || !cfg.EnableFallback {
			return i.fail(err)
		}
		next := i.router.NextHealthy(tried)
		if next == nil {
			return i.fail(err)
		}
		log.Warn("stream open failed, trying next",
			"provider", entry.Provider.String(),
			"next", next.Provider.String(),
			"error", err.Error(),
		)
		entry = next
	}

	p := entry.Provider
	counted := func(chunk StreamChunk) {
		metrics.StreamChunksTotal.WithLabelValues(p.String()).Inc()
		onChunk(chunk)
	}

	start := time.Now()
	err = stream.Deliver(sctx, sess, events, counted)
	elapsed := time.Since(start)

	switch sess.State() {
	case stream.StateClosed:
		i.router.RecordOutcome(p, true, elapsed)
		metrics.ObserveRequest(p.String(), "success", elapsed)
	case stream.StateFailed:
		i.router.RecordOutcome(p, false, elapsed)
		metrics.ObserveRequest(p.String(), "error", elapsed)
	}
	if err != nil {
		return i.fail(err)
	}
	return nil
}

// openStream resolves the credential and starts the provider stream.
// No deadline is applied here: long generations outlive any sensible
// per-call timeout, so streams end on ctx, completion, or failure.
func (i *Instance) openStream(ctx context.Context, entry *router.Entry, cfg Config, messages []Message) (<-chan StreamEvent, error) {
	cred, err := i.creds.Ensure(ctx, entry.Provider, entry.Transport)
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
	if entry.Provider == cfg.Provider {
		req.BaseURL = cfg.BaseURL
	}

	start := time.Now()
	events, err := entry.Transport.SendStream(ctx, req)
	if err != nil {
		if transportFailure(err) {
			i.router.RecordOutcome(entry.Provider, false, time.Since(start))
			metrics.ObserveRequest(entry.Provider.String(), "error", time.Since(start))
		}
		return nil, err
	}
	return events, nil
}

func (i *Instance) registerSession(s *stream.Session) {
	i.sessMu.Lock()
	i.sessions[s.ID()] = s
	i.sessMu.Unlock()
}

func (i *Instance) unregisterSession(s *stream.Session) {
	i.sessMu.Lock()
	delete(i.sessions, s.ID())
	i.sessMu.Unlock()
}
