package switchboard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// fakeTransport is a scriptable in-memory transport.
type fakeTransport struct {
	provider Provider

	mu            sync.Mutex
	sendCount     int
	exchangeCount int
	lastToken     string

	reply     string
	sendErr   error
	events    []StreamEvent
	openErr   error
	authErr   error
	exchanged *Token
}

func (f *fakeTransport) Provider() Provider { return f.provider }

func (f *fakeTransport) Send(ctx context.Context, req *Request) (*Completion, error) {
	f.mu.Lock()
	f.sendCount++
	f.lastToken = req.Token
	f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &Completion{
		Content: f.reply,
		Model:   req.Model,
		Usage:   &Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}, nil
}

func (f *fakeTransport) SendStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := make(chan StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeTransport) TestAuth(ctx context.Context, token string) error { return f.authErr }

func (f *fakeTransport) ExchangeToken(ctx context.Context, refreshToken string) (*Token, error) {
	f.mu.Lock()
	f.exchangeCount++
	f.mu.Unlock()
	if f.exchanged == nil {
		return nil, types.E(types.CodeTokenExchangeFailed, "not supported")
	}
	return f.exchanged, nil
}

func (f *fakeTransport) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

func (f *fakeTransport) exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCount
}

func (f *fakeTransport) tokenSeen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

func newTestInstance(t *testing.T, cfg Config, transports map[Provider]Transport) *Instance {
	t.Helper()
	if cfg.ModelName == "" {
		cfg.ModelName = "test-model"
	}
	inst, err := New(cfg, WithTransports(transports))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { inst.Close() })
	return inst
}

func singleProvider(reply string) (map[Provider]Transport, *fakeTransport) {
	ft := &fakeTransport{provider: ProviderOpenAI, reply: reply}
	return map[Provider]Transport{ProviderOpenAI: ft}, ft
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Provider: Provider(42)})
	if CodeOf(err) != CodeInitializationFailed {
		t.Fatalf("expected InitializationFailed, got %v", err)
	}

	_, err = New(Config{Provider: ProviderOpenAI, Temperature: 3.0})
	if CodeOf(err) != CodeInitializationFailed {
		t.Fatalf("expected InitializationFailed, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	if err := inst.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}

	_, err := inst.Chat(context.Background(), "hello")
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter on closed instance, got %v", err)
	}
}

func TestChat_Success(t *testing.T) {
	transports, ft := singleProvider("The answer is 42.")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	resp, err := inst.Chat(context.Background(), "What is the answer?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "The answer is 42." {
		t.Errorf("wrong content: %q", resp.Content)
	}
	if resp.ProviderUsed != ProviderOpenAI {
		t.Errorf("wrong provider: %v", resp.ProviderUsed)
	}
	if resp.TokensUsed != 12 {
		t.Errorf("wrong token count: %d", resp.TokensUsed)
	}
	if resp.RequestID == "" {
		t.Error("request id missing")
	}
	if ft.sends() != 1 {
		t.Errorf("expected exactly one send, got %d", ft.sends())
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	transports, ft := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	_, err := inst.Chat(context.Background(), "   ")
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
	if ft.sends() != 0 {
		t.Error("no request should reach the provider")
	}
}

func TestChat_NetworkErrorNoFallback(t *testing.T) {
	ft := &fakeTransport{
		provider: ProviderOpenAI,
		sendErr:  types.E(types.CodeNetworkError, "connection refused"),
	}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: ft})

	_, err := inst.Chat(context.Background(), "hello")
	if CodeOf(err) != CodeNetworkError {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if inst.LastError() == "" {
		t.Error("last error not recorded")
	}
	if !strings.Contains(inst.LastError(), "connection refused") {
		t.Errorf("last error should carry the message: %q", inst.LastError())
	}
}

func TestChat_FailoverToHealthyProvider(t *testing.T) {
	broken := &fakeTransport{
		provider: ProviderClaude,
		sendErr:  types.E(types.CodeNetworkError, "claude is down"),
	}
	working := &fakeTransport{provider: ProviderOllama, reply: "served by ollama"}

	inst := newTestInstance(t,
		Config{Provider: ProviderClaude, EnableFallback: true, BaseURL: "http://localhost:11434"},
		map[Provider]Transport{ProviderClaude: broken, ProviderOllama: working})

	resp, err := inst.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderUsed != ProviderOllama {
		t.Errorf("expected ollama to serve the request, got %v", resp.ProviderUsed)
	}
	if resp.Content != "served by ollama" {
		t.Errorf("wrong content: %q", resp.Content)
	}
	if broken.sends() != 1 || working.sends() != 1 {
		t.Errorf("expected one attempt each, got %d and %d", broken.sends(), working.sends())
	}
}

func TestChat_CopilotRedeemsSessionToken(t *testing.T) {
	ft := &fakeTransport{
		provider: ProviderCopilot,
		reply:    "copilot says hi",
		exchanged: &Token{
			AccessToken: "session-token",
			TokenType:   "bearer",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	inst := newTestInstance(t, Config{Provider: ProviderCopilot},
		map[Provider]Transport{ProviderCopilot: ft})

	if err := inst.SetToken(ProviderCopilot, "gh_longlived"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, err := inst.Chat(context.Background(), "hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "copilot says hi" {
			t.Errorf("wrong content: %q", resp.Content)
		}
	}

	if ft.exchanges() != 1 {
		t.Errorf("expected exactly one token exchange, got %d", ft.exchanges())
	}
	if ft.tokenSeen() != "session-token" {
		t.Errorf("chat authenticated with %q instead of the session token", ft.tokenSeen())
	}
}

func TestChat_AuthFailureDoesNotFailover(t *testing.T) {
	badAuth := &fakeTransport{
		provider: ProviderOpenAI,
		sendErr:  types.E(types.CodeAuthenticationFailed, "bad key"),
	}
	other := &fakeTransport{provider: ProviderClaude, reply: "should not run"}

	inst := newTestInstance(t,
		Config{Provider: ProviderOpenAI, EnableFallback: true},
		map[Provider]Transport{ProviderOpenAI: badAuth, ProviderClaude: other})

	_, err := inst.Chat(context.Background(), "hello")
	if CodeOf(err) != CodeAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}
	if other.sends() != 0 {
		t.Error("auth failures must not move to another provider")
	}
}

func TestChat_AllProvidersExhausted(t *testing.T) {
	a := &fakeTransport{provider: ProviderOpenAI, sendErr: types.E(types.CodeNetworkError, "down")}
	b := &fakeTransport{provider: ProviderClaude, sendErr: types.E(types.CodeNetworkError, "down")}

	inst := newTestInstance(t,
		Config{Provider: ProviderOpenAI, EnableFallback: true},
		map[Provider]Transport{ProviderOpenAI: a, ProviderClaude: b})

	_, err := inst.Chat(context.Background(), "hello")
	if CodeOf(err) != CodeNetworkError {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if a.sends() != 1 || b.sends() != 1 {
		t.Errorf("expected one attempt each, got %d and %d", a.sends(), b.sends())
	}
}

func TestChat_CacheHitGetsFreshRequestID(t *testing.T) {
	transports, ft := singleProvider("cached answer")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI, CacheTTLMs: 60_000}, transports)

	first, err := inst.Chat(context.Background(), "same question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inst.cache.Wait()

	second, err := inst.Chat(context.Background(), "same question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.sends() != 1 {
		t.Fatalf("expected the second call to hit the cache, got %d sends", ft.sends())
	}
	if second.Content != first.Content {
		t.Errorf("cache returned different content: %q", second.Content)
	}
	if second.RequestID == first.RequestID {
		t.Error("a cache hit must carry its own request id")
	}
	if second.ResponseTimeMs != 0 {
		t.Errorf("a cache hit reports no elapsed time, got %d", second.ResponseTimeMs)
	}
}

func TestChatAsync(t *testing.T) {
	transports, _ := singleProvider("async reply")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	done := make(chan struct{})
	var resp *Response
	var cbErr error
	err := inst.ChatAsync(context.Background(), "hello", func(r *Response, e error) {
		resp, cbErr = r, e
		close(done)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}
	if cbErr != nil {
		t.Fatalf("unexpected error: %v", cbErr)
	}
	if resp.Content != "async reply" {
		t.Errorf("wrong content: %q", resp.Content)
	}
}

func TestChatAsync_NilCallback(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	err := inst.ChatAsync(context.Background(), "hello", nil)
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestChatStream_OrderedDelivery(t *testing.T) {
	ft := &fakeTransport{
		provider: ProviderOpenAI,
		events: []StreamEvent{
			{Content: "one "},
			{Content: "two "},
			{Content: "three"},
			{Done: true},
		},
	}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: ft})

	var chunks []StreamChunk
	err := inst.ChatStream(context.Background(), "count", func(c StreamChunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != uint32(i) {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
	last := chunks[len(chunks)-1]
	if !last.IsFinal || last.TotalChunks != 4 {
		t.Errorf("bad final chunk: %+v", last)
	}
	for _, c := range chunks[:3] {
		if c.IsFinal {
			t.Fatal("IsFinal set before the last chunk")
		}
	}
}

func TestChatStream_MidStreamFailure(t *testing.T) {
	ft := &fakeTransport{
		provider: ProviderOpenAI,
		events: []StreamEvent{
			{Content: "partial"},
			{Err: types.E(types.CodeNetworkError, "connection reset")},
		},
	}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: ft})

	var finals int
	err := inst.ChatStream(context.Background(), "hello", func(c StreamChunk) {
		if c.IsFinal {
			finals++
		}
	})
	if CodeOf(err) != CodeStreamingFailed {
		t.Fatalf("expected StreamingFailed, got %v", err)
	}
	if finals != 0 {
		t.Error("a failed stream must not deliver a final chunk")
	}
}

func TestChatStream_OpenFailureFailsOver(t *testing.T) {
	broken := &fakeTransport{
		provider: ProviderClaude,
		openErr:  types.E(types.CodeNetworkError, "refused"),
	}
	working := &fakeTransport{
		provider: ProviderOpenAI,
		events:   []StreamEvent{{Content: "ok"}, {Done: true}},
	}
	inst := newTestInstance(t,
		Config{Provider: ProviderClaude, EnableFallback: true},
		map[Provider]Transport{ProviderClaude: broken, ProviderOpenAI: working})

	var got string
	err := inst.ChatStream(context.Background(), "hello", func(c StreamChunk) {
		got += c.Content
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("wrong content: %q", got)
	}
}

func TestSetToken(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	if err := inst.SetToken(ProviderOpenAI, "sk-new"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := inst.SetToken(ProviderOpenAI, ""); CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
	if err := inst.SetToken(Provider(42), "sk-x"); CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestTestAuth(t *testing.T) {
	ft := &fakeTransport{provider: ProviderOpenAI}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: ft})

	if err := inst.TestAuth(context.Background(), ProviderOpenAI); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ft.authErr = types.E(types.CodeAuthenticationFailed, "bad key")
	if err := inst.TestAuth(context.Background(), ProviderOpenAI); CodeOf(err) != CodeAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}

	if err := inst.TestAuth(context.Background(), ProviderVulcan); CodeOf(err) != CodeProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable for unregistered provider, got %v", err)
	}
}

func TestSwitchProvider(t *testing.T) {
	a := &fakeTransport{provider: ProviderOpenAI, reply: "from openai"}
	b := &fakeTransport{provider: ProviderClaude, reply: "from claude"}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: a, ProviderClaude: b})

	if err := inst.SwitchProvider(ProviderClaude); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.CurrentProvider() != ProviderClaude {
		t.Errorf("expected claude, got %v", inst.CurrentProvider())
	}

	resp, err := inst.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderUsed != ProviderClaude {
		t.Errorf("request went to %v after switch", resp.ProviderUsed)
	}

	if err := inst.SwitchProvider(ProviderVulcan); CodeOf(err) != CodeProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable, got %v", err)
	}
	if inst.CurrentProvider() != ProviderClaude {
		t.Error("failed switch must not change the current provider")
	}
}

func TestReloadConfig(t *testing.T) {
	a := &fakeTransport{provider: ProviderOpenAI, reply: "from openai"}
	b := &fakeTransport{provider: ProviderClaude, reply: "from claude"}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: a, ProviderClaude: b})

	err := inst.ReloadConfig(Config{Provider: ProviderClaude, ModelName: "claude-x", APIKey: "sk-new"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.CurrentProvider() != ProviderClaude {
		t.Errorf("reload did not switch provider: %v", inst.CurrentProvider())
	}

	resp, err := inst.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderUsed != ProviderClaude {
		t.Errorf("request went to %v after reload", resp.ProviderUsed)
	}
}

func TestReloadConfig_Invalid(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	err := inst.ReloadConfig(Config{Provider: ProviderOpenAI, Temperature: 9})
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
	if inst.CurrentProvider() != ProviderOpenAI {
		t.Error("failed reload must not change the active provider")
	}

	err = inst.ReloadConfig(Config{Provider: ProviderVulcan, BaseURL: "http://gpu:8080"})
	if CodeOf(err) != CodeProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable for unregistered provider, got %v", err)
	}
}

func TestReloadConfig_RollsBackProviderOnFailure(t *testing.T) {
	a := &fakeTransport{provider: ProviderOpenAI, reply: "hi"}
	b := &fakeTransport{provider: ProviderClaude, reply: "hi"}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: a, ProviderClaude: b})

	// Whitespace API key fails after the provider switch has happened.
	err := inst.ReloadConfig(Config{Provider: ProviderClaude, ModelName: "claude-x", APIKey: "   "})
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
	if inst.CurrentProvider() != ProviderOpenAI {
		t.Errorf("failed reload left provider switched to %v", inst.CurrentProvider())
	}

	resp, err := inst.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderUsed != ProviderOpenAI {
		t.Errorf("request went to %v after rolled-back reload", resp.ProviderUsed)
	}
}

func TestProviderStatus(t *testing.T) {
	a := &fakeTransport{provider: ProviderOpenAI, reply: "hi"}
	b := &fakeTransport{provider: ProviderClaude, reply: "hi"}
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI},
		map[Provider]Transport{ProviderOpenAI: a, ProviderClaude: b})

	if _, err := inst.Chat(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses, err := inst.ProviderStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, st := range statuses {
		if !st.IsHealthy {
			t.Errorf("provider %v unexpectedly unhealthy", st.Provider)
		}
	}

	buf := make([]ProviderStatus, 1)
	written, total, err := inst.ProviderStatusInto(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 1 || total != 2 {
		t.Errorf("expected (1, 2), got (%d, %d)", written, total)
	}
}

func TestGPU_DisabledByDefault(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	_, err := inst.GPUInfo(context.Background())
	if CodeOf(err) != CodeProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable, got %v", err)
	}

	if err := inst.InitGPU("", true); CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}

	_, err = inst.Benchmark(context.Background(), "llama3", 0)
	if CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	if Version() == "" {
		t.Error("version must not be empty")
	}
}

func TestLastError_StartsEmpty(t *testing.T) {
	transports, _ := singleProvider("hi")
	inst := newTestInstance(t, Config{Provider: ProviderOpenAI}, transports)

	if inst.LastError() != "" {
		t.Errorf("fresh instance has last error %q", inst.LastError())
	}
}
