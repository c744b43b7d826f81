// Package transport defines the per-provider wire capability consumed by
// the router: a synchronous send, a streaming send, an auth probe and an
// optional token exchange. One Transport instance exists per provider
// variant; all of them are safe for concurrent use.
package transport

import (
	"context"
	"time"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Request is a provider-agnostic chat request. The router injects the
// credential and endpoint resolved for the selected provider.
type Request struct {
	Messages    []types.Message
	Model       string
	Temperature float32
	MaxTokens   uint32
	BaseURL     string
	Token       string
}

// Completion is a full (non-streaming) chat result from a provider.
type Completion struct {
	Content string
	Model   string
	Usage   *types.Usage
}

// StreamEvent is one increment produced by a streaming call. The channel
// is closed after the Done event, or after an event carrying Err.
type StreamEvent struct {
	Content string
	Done    bool
	Usage   *types.Usage
	Err     error
}

// Token is an exchanged or refreshed credential.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
}

// Transport is the wire capability for one provider variant.
type Transport interface {
	// Provider returns the variant this transport serves.
	Provider() types.Provider

	// Send performs a synchronous chat call.
	Send(ctx context.Context, req *Request) (*Completion, error)

	// SendStream performs a streaming chat call. Events arrive in order
	// on the returned channel; the producer stops on ctx cancellation.
	SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// TestAuth verifies a credential against the provider without
	// issuing a chat request.
	TestAuth(ctx context.Context, token string) error

	// ExchangeToken redeems a refresh token for a fresh credential.
	// Providers with static API keys return CodeTokenExchangeFailed.
	ExchangeToken(ctx context.Context, refreshToken string) (*Token, error)
}
