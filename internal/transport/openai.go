package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/switchboard-dev/switchboard/internal/types"
)

const openAIDefaultURL = "https://api.openai.com/v1"

// OpenAI is the transport for the OpenAI commercial API.
type OpenAI struct {
	hc *http.Client
}

// NewOpenAI creates the OpenAI transport.
func NewOpenAI() *OpenAI {
	return &OpenAI{hc: newHTTPClient()}
}

func (t *OpenAI) Provider() types.Provider { return types.ProviderOpenAI }

func (t *OpenAI) baseURL(req *Request) string {
	if req.BaseURL != "" {
		return strings.TrimSuffix(req.BaseURL, "/")
	}
	return openAIDefaultURL
}

func (t *OpenAI) Send(ctx context.Context, req *Request) (*Completion, error) {
	return sendChatCompletions(ctx, t.hc, t.baseURL(req)+"/chat/completions", bearer(req.Token), req)
}

func (t *OpenAI) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return streamChatCompletions(ctx, t.hc, t.baseURL(req)+"/chat/completions", bearer(req.Token), req)
}

// TestAuth lists models, which fails with 401 for a bad key.
func (t *OpenAI) TestAuth(ctx context.Context, token string) error {
	return getJSON(ctx, t.hc, openAIDefaultURL+"/models", bearer(token), nil)
}

// ExchangeToken is unsupported: OpenAI credentials are static API keys.
func (t *OpenAI) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	return nil, types.E(types.CodeTokenExchangeFailed, "openai does not issue refresh tokens")
}
