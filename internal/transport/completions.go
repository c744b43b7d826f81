package transport

import (
	"context"
	"net/http"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// The OpenAI chat-completions wire shape, shared by the OpenAI, Copilot
// and Vulcan backends.

type chatCompletionsRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float32         `json:"temperature"`
	MaxTokens   uint32          `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *completionsUsage `json:"usage"`
}

type completionsUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

func (u *completionsUsage) toUsage() *types.Usage {
	if u == nil {
		return nil
	}
	return &types.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type chatCompletionsChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *completionsUsage `json:"usage"`
}

// sendChatCompletions performs a synchronous chat-completions call.
func sendChatCompletions(ctx context.Context, hc *http.Client, url string, headers http.Header, req *Request) (*Completion, error) {
	payload := chatCompletionsRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	resp, err := postJSON(ctx, hc, url, headers, payload)
	if err != nil {
		return nil, err
	}

	var out chatCompletionsResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, types.E(types.CodeUnexpectedResponse, "no choices in completion")
	}

	return &Completion{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage:   out.Usage.toUsage(),
	}, nil
}

// streamChatCompletions performs a streaming chat-completions call and
// pumps SSE chunks into the returned channel.
func streamChatCompletions(ctx context.Context, hc *http.Client, url string, headers http.Header, req *Request) (<-chan StreamEvent, error) {
	payload := chatCompletionsRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	resp, err := postJSON(ctx, hc, url, headers, payload)
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
		finished := false

		err := scanSSE(resp.Body, func(data []byte, done bool) error {
			if done {
				// [DONE] marker; deferred to the final event below.
				return nil
			}
			var chunk chatCompletionsChunk
			if err := unmarshalLoose(data, &chunk); err != nil {
				return nil // skip malformed chunks
			}
			if chunk.Usage != nil {
				usage = chunk.Usage.toUsage()
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" && !finished {
					if !emit(ctx, events, StreamEvent{Content: choice.Delta.Content}) {
						return errStreamConsumerGone
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finished = true
				}
			}
			return nil
		})

		switch {
		case err == errStreamConsumerGone:
			return
		case err != nil:
			emit(ctx, events, StreamEvent{Err: netError(url, err)})
		default:
			emit(ctx, events, StreamEvent{Done: true, Usage: usage})
		}
	}()

	return events, nil
}

// emit sends an event unless the consumer went away.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
