package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/switchboard-dev/switchboard/internal/types"
)

const (
	claudeDefaultURL   = "https://api.anthropic.com"
	claudeAPIVersion   = "2023-06-01"
	claudeOAuthTokenEP = "https://console.anthropic.com/v1/oauth/token"
)

// Claude is the transport for the Anthropic messages API.
type Claude struct {
	hc *http.Client
}

// NewClaude creates the Claude transport.
func NewClaude() *Claude {
	return &Claude{hc: newHTTPClient()}
}

func (t *Claude) Provider() types.Provider { return types.ProviderClaude }

func (t *Claude) baseURL(req *Request) string {
	if req.BaseURL != "" {
		return strings.TrimSuffix(req.BaseURL, "/")
	}
	return claudeDefaultURL
}

func (t *Claude) headers(token string) http.Header {
	h := http.Header{}
	h.Set("x-api-key", token)
	h.Set("anthropic-version", claudeAPIVersion)
	return h
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   uint32          `json:"max_tokens"`
	Temperature float32         `json:"temperature"`
	Stream      bool            `json:"stream,omitempty"`
}

type claudeResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  uint32 `json:"input_tokens"`
		OutputTokens uint32 `json:"output_tokens"`
	} `json:"usage"`
}

func (t *Claude) Send(ctx context.Context, req *Request) (*Completion, error) {
	payload := claudeRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	resp, err := postJSON(ctx, t.hc, t.baseURL(req)+"/v1/messages", t.headers(req.Token), payload)
	if err != nil {
		return nil, err
	}

	var out claudeResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 && len(out.Content) == 0 {
		return nil, types.E(types.CodeUnexpectedResponse, "no content blocks in message")
	}

	comp := &Completion{Content: content.String(), Model: out.Model}
	if out.Usage != nil {
		comp.Usage = &types.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		}
	}
	return comp, nil
}

// claudeStreamEvent covers the three event payloads we care about:
// content_block_delta (text), message_delta (usage) and message_stop.
type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens uint32 `json:"output_tokens"`
	} `json:"usage"`
}

func (t *Claude) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	payload := claudeRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}

	resp, err := postJSON(ctx, t.hc, t.baseURL(req)+"/v1/messages", t.headers(req.Token), payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var usage *types.Usage

		err := scanSSE(resp.Body, func(data []byte, done bool) error {
			if done {
				return nil
			}
			var ev claudeStreamEvent
			if err := unmarshalLoose(data, &ev); err != nil {
				return nil
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					if !emit(ctx, events, StreamEvent{Content: ev.Delta.Text}) {
						return errStreamConsumerGone
					}
				}
			case "message_delta":
				if ev.Usage != nil {
					usage = &types.Usage{
						CompletionTokens: ev.Usage.OutputTokens,
						TotalTokens:      ev.Usage.OutputTokens,
					}
				}
			}
			return nil
		})

		switch {
		case err == errStreamConsumerGone:
			return
		case err != nil:
			emit(ctx, events, StreamEvent{Err: netError(t.baseURL(req), err)})
		default:
			emit(ctx, events, StreamEvent{Done: true, Usage: usage})
		}
	}()

	return events, nil
}

// TestAuth lists models; Anthropic rejects bad keys with 401.
func (t *Claude) TestAuth(ctx context.Context, token string) error {
	return getJSON(ctx, t.hc, claudeDefaultURL+"/v1/models", t.headers(token), nil)
}

// ExchangeToken redeems an OAuth refresh token for a new access token.
func (t *Claude) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	payload := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}

	resp, err := postJSON(ctx, t.hc, claudeOAuthTokenEP, nil, payload)
	if err != nil {
		return nil, types.Wrap(types.CodeTokenExchangeFailed, "claude token exchange", err)
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    uint64 `json:"expires_in"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, types.Wrap(types.CodeTokenExchangeFailed, "claude token exchange", err)
	}
	if out.AccessToken == "" {
		return nil, types.E(types.CodeTokenExchangeFailed, "claude token exchange returned no access token")
	}

	tok := &Token{
		AccessToken:  out.AccessToken,
		TokenType:    out.TokenType,
		RefreshToken: out.RefreshToken,
	}
	if out.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return tok, nil
}
