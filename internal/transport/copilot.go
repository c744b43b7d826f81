package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/switchboard-dev/switchboard/internal/types"
)

const (
	copilotChatURL  = "https://api.githubcopilot.com"
	copilotTokenURL = "https://api.github.com/copilot_internal/v2/token"
)

// Copilot is the transport for the GitHub Copilot code-assist backend.
//
// Copilot uses two-stage auth: a long-lived GitHub token is exchanged for
// a short-lived session token, which authenticates chat calls. The auth
// store drives the exchange through ExchangeToken when the session token
// nears expiry.
type Copilot struct {
	hc *http.Client
}

// NewCopilot creates the Copilot transport.
func NewCopilot() *Copilot {
	return &Copilot{hc: newHTTPClient()}
}

func (t *Copilot) Provider() types.Provider { return types.ProviderCopilot }

func (t *Copilot) baseURL(req *Request) string {
	if req.BaseURL != "" {
		return strings.TrimSuffix(req.BaseURL, "/")
	}
	return copilotChatURL
}

func (t *Copilot) headers(token string) http.Header {
	h := bearer(token)
	h.Set("Editor-Version", "switchboard/0.9")
	h.Set("Copilot-Integration-Id", "vscode-chat")
	return h
}

func (t *Copilot) Send(ctx context.Context, req *Request) (*Completion, error) {
	return sendChatCompletions(ctx, t.hc, t.baseURL(req)+"/chat/completions", t.headers(req.Token), req)
}

func (t *Copilot) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return streamChatCompletions(ctx, t.hc, t.baseURL(req)+"/chat/completions", t.headers(req.Token), req)
}

// TestAuth probes the token-exchange endpoint with the GitHub token.
func (t *Copilot) TestAuth(ctx context.Context, token string) error {
	h := http.Header{}
	h.Set("Authorization", "token "+token)
	return getJSON(ctx, t.hc, copilotTokenURL, h, nil)
}

// ExchangeToken redeems the GitHub token for a Copilot session token.
func (t *Copilot) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	h := http.Header{}
	h.Set("Authorization", "token "+refreshToken)

	var out struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := getJSON(ctx, t.hc, copilotTokenURL, h, &out); err != nil {
		return nil, types.Wrap(types.CodeTokenExchangeFailed, "copilot token exchange", err)
	}
	if out.Token == "" {
		return nil, types.E(types.CodeTokenExchangeFailed, "copilot token exchange returned no token")
	}

	tok := &Token{
		AccessToken: out.Token,
		TokenType:   "bearer",
		// The GitHub token stays usable for the next exchange.
		RefreshToken: refreshToken,
	}
	if out.ExpiresAt > 0 {
		tok.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return tok, nil
}
