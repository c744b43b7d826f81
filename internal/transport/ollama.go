package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// Ollama is the transport for a local Ollama server. Ollama speaks its
// native /api/chat protocol: JSON for sync calls, NDJSON for streams,
// and it requires no credential.
type Ollama struct {
	hc   *http.Client
	base string
}

// NewOllama creates the Ollama transport for the given server endpoint.
func NewOllama(baseURL string) *Ollama {
	return &Ollama{hc: newHTTPClient(), base: strings.TrimSuffix(baseURL, "/")}
}

func (t *Ollama) Provider() types.Provider { return types.ProviderOllama }

func (t *Ollama) baseURL(req *Request) string {
	if req.BaseURL != "" {
		return strings.TrimSuffix(req.BaseURL, "/")
	}
	return t.base
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  uint32  `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	PromptEvalCount uint32 `json:"prompt_eval_count"`
	EvalCount       uint32 `json:"eval_count"`
}

func (r *ollamaResponse) usage() *types.Usage {
	if r.PromptEvalCount == 0 && r.EvalCount == 0 {
		return nil
	}
	return &types.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func (t *Ollama) Send(ctx context.Context, req *Request) (*Completion, error) {
	payload := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}

	resp, err := postJSON(ctx, t.hc, t.baseURL(req)+"/api/chat", nil, payload)
	if err != nil {
		return nil, err
	}

	var out ollamaResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}

	return &Completion{
		Content: out.Message.Content,
		Model:   out.Model,
		Usage:   out.usage(),
	}, nil
}

// SendStream reads Ollama's NDJSON stream: one JSON object per line,
// the last one carrying done=true and eval counts.
func (t *Ollama) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	payload := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}

	resp, err := postJSON(ctx, t.hc, t.baseURL(req)+"/api/chat", nil, payload)
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

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 64*1024)
		scanner.Buffer(buf, 256*1024)

		for scanner.Scan() {
			var line ollamaResponse
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			if line.Done {
				emit(ctx, events, StreamEvent{Content: line.Message.Content, Done: true, Usage: line.usage()})
				return
			}
			if line.Message.Content != "" {
				if !emit(ctx, events, StreamEvent{Content: line.Message.Content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, events, StreamEvent{Err: netError(t.baseURL(req), err)})
			return
		}
		emit(ctx, events, StreamEvent{Err: types.E(types.CodeStreamingFailed, "ollama stream ended without done marker")})
	}()

	return events, nil
}

// TestAuth checks reachability; Ollama has no credentials, so a
// responding server means healthy.
func (t *Ollama) TestAuth(ctx context.Context, token string) error {
	return getJSON(ctx, t.hc, t.base+"/api/tags", nil, nil)
}

// ExchangeToken is unsupported: Ollama is unauthenticated.
func (t *Ollama) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	return nil, types.E(types.CodeTokenExchangeFailed, "ollama does not use tokens")
}
