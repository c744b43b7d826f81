package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Vulcan is the transport for the GPU-accelerated local inference
// server. Vulcan exposes an OpenAI-compatible chat surface under /v1
// plus its own health and telemetry endpoints (served by the gpu
// package's client).
type Vulcan struct {
	hc   *http.Client
	base string
}

// NewVulcan creates the Vulcan transport for the given server endpoint.
func NewVulcan(baseURL string) *Vulcan {
	return &Vulcan{hc: newHTTPClient(), base: strings.TrimSuffix(baseURL, "/")}
}

func (t *Vulcan) Provider() types.Provider { return types.ProviderVulcan }

func (t *Vulcan) baseURL(req *Request) string {
	if req.BaseURL != "" {
		return strings.TrimSuffix(req.BaseURL, "/")
	}
	return t.base
}

func (t *Vulcan) Send(ctx context.Context, req *Request) (*Completion, error) {
	return sendChatCompletions(ctx, t.hc, t.baseURL(req)+"/v1/chat/completions", bearer(req.Token), req)
}

func (t *Vulcan) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return streamChatCompletions(ctx, t.hc, t.baseURL(req)+"/v1/chat/completions", bearer(req.Token), req)
}

// TestAuth hits the health endpoint with the credential attached; the
// server rejects bad keys there as well.
func (t *Vulcan) TestAuth(ctx context.Context, token string) error {
	return getJSON(ctx, t.hc, t.base+"/health", bearer(token), nil)
}

// ExchangeToken is unsupported: Vulcan keys are static.
func (t *Vulcan) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	return nil, types.E(types.CodeTokenExchangeFailed, "vulcan does not issue refresh tokens")
}
