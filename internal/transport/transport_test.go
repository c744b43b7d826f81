package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/switchboard-dev/switchboard/internal/types"
)

func collect(t *testing.T, events <-chan StreamEvent) (content string, usage *types.Usage, err error) {
	t.Helper()
	for ev := range events {
		if ev.Err != nil {
			return content, usage, ev.Err
		}
		content += ev.Content
		if ev.Done {
			return content, ev.Usage, nil
		}
	}
	t.Fatal("stream closed without done event")
	return "", nil, nil
}

func TestOpenAI_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`)
	}))
	defer srv.Close()

	tr := NewOpenAI()
	comp, err := tr.Send(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "gpt-4o-mini",
		BaseURL:  srv.URL,
		Token:    "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "Hello!" {
		t.Errorf("wrong content: %q", comp.Content)
	}
	if comp.Usage == nil || comp.Usage.TotalTokens != 12 {
		t.Errorf("wrong usage: %+v", comp.Usage)
	}
}

func TestOpenAI_SendStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	tr := NewOpenAI()
	events, err := tr.SendStream(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "gpt-4o-mini",
		BaseURL:  srv.URL,
		Token:    "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, usage, err := collect(t, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Hello" {
		t.Errorf("wrong streamed content: %q", content)
	}
	if usage == nil || usage.TotalTokens != 5 {
		t.Errorf("wrong usage: %+v", usage)
	}
}

func TestStatusError_Mapping(t *testing.T) {
	tests := []struct {
		status int
		code   types.Code
	}{
		{http.StatusUnauthorized, types.CodeAuthenticationFailed},
		{http.StatusForbidden, types.CodeAuthenticationFailed},
		{http.StatusNotFound, types.CodeInvalidModel},
		{http.StatusTooManyRequests, types.CodeNetworkError},
		{http.StatusInternalServerError, types.CodeNetworkError},
		{http.StatusTeapot, types.CodeUnexpectedResponse},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr := NewOpenAI()
			_, err := tr.Send(context.Background(), &Request{
				Messages: []types.Message{types.UserMessage("hi")},
				Model:    "gpt-4o-mini",
				BaseURL:  srv.URL,
			})
			if types.CodeOf(err) != tt.code {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestSend_Unreachable(t *testing.T) {
	tr := NewOpenAI()
	_, err := tr.Send(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "gpt-4o-mini",
		BaseURL:  "http://127.0.0.1:1",
	})
	if types.CodeOf(err) != types.CodeNetworkError {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestOllama_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"model": "llama3",
			"message": {"role": "assistant", "content": "Bonjour"},
			"done": true,
			"prompt_eval_count": 7,
			"eval_count": 2
		}`)
	}))
	defer srv.Close()

	tr := NewOllama(srv.URL)
	comp, err := tr.Send(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "llama3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "Bonjour" {
		t.Errorf("wrong content: %q", comp.Content)
	}
	if comp.Usage == nil || comp.Usage.TotalTokens != 9 {
		t.Errorf("wrong usage: %+v", comp.Usage)
	}
}

func TestOllama_SendStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Bon"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"jour"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true,"prompt_eval_count":3,"eval_count":2}`)
	}))
	defer srv.Close()

	tr := NewOllama(srv.URL)
	events, err := tr.SendStream(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "llama3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, usage, err := collect(t, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Bonjour" {
		t.Errorf("wrong streamed content: %q", content)
	}
	if usage == nil || usage.TotalTokens != 5 {
		t.Errorf("wrong usage: %+v", usage)
	}
}

func TestOllama_StreamWithoutDoneMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"partial"},"done":false}`)
	}))
	defer srv.Close()

	tr := NewOllama(srv.URL)
	events, err := tr.SendStream(context.Background(), &Request{
		Messages: []types.Message{types.UserMessage("hi")},
		Model:    "llama3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = collect(t, events)
	if types.CodeOf(err) != types.CodeStreamingFailed {
		t.Fatalf("expected StreamingFailed, got %v", err)
	}
}

func TestScanSSE(t *testing.T) {
	body := strings.NewReader(
		"data: {\"a\":1}\n" +
			": comment line\n" +
			"event: something\n" +
			"data: {\"a\":2}\n" +
			"data: [DONE]\n",
	)

	var payloads []string
	var done bool
	err := scanSSE(body, func(data []byte, isDone bool) error {
		if isDone {
			done = true
			return nil
		}
		payloads = append(payloads, string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payloads) != 2 || payloads[0] != `{"a":1}` || payloads[1] != `{"a":2}` {
		t.Errorf("wrong payloads: %v", payloads)
	}
	if !done {
		t.Error("done marker not seen")
	}
}

func TestDefaults_CoversAllProviders(t *testing.T) {
	m := Defaults("http://localhost:11434", "http://localhost:8080")
	for _, p := range types.AllProviders() {
		tr, ok := m[p]
		if !ok {
			t.Fatalf("no transport for %v", p)
		}
		if tr.Provider() != p {
			t.Errorf("transport for %v reports %v", p, tr.Provider())
		}
	}
}
