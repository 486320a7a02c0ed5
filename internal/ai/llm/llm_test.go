package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/common/errors"
	httpc "ai-orchestrator/internal/common/http"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/pkg/registry"
)

// scriptedProvider replays canned responses and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []func(req CompletionRequest) (*CompletionResponse, error)
	requests  []CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	idx := len(p.requests) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx](req)
}

func (p *scriptedProvider) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func text(s string) func(CompletionRequest) (*CompletionResponse, error) {
	return func(req CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{Model: req.Model, Text: s, TokensIn: 1000, TokensOut: 1000}, nil
	}
}

func fail(err error) func(CompletionRequest) (*CompletionResponse, error) {
	return func(CompletionRequest) (*CompletionResponse, error) { return nil, err }
}

func testConfig() Config {
	return Config{
		MiniModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Retry:          RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Timeout:        time.Second,
		IdempotencyTTL: time.Minute,
		MaxToolCalls:   4,
	}
}

func newTestClient(t *testing.T, p Provider, breaker *Breaker) *Client {
	if breaker == nil {
		breaker = NewBreaker(5, time.Minute)
	}
	return NewClient(p, registry.DefaultRegistry(), breaker, nil, testConfig(), observability.NewNoop(), logger.NewTestLogger(t))
}

func TestBreaker_OpensAfterThresholdAndResetsAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(3, 30*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	require.NoError(t, b.Allow())

	b.RecordFailure()
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCircuitOpen))
	assert.True(t, b.State().IsOpen)

	now = now.Add(29 * time.Second)
	assert.Error(t, b.Allow())

	now = now.Add(time.Second)
	require.NoError(t, b.Allow())
	state := b.State()
	assert.False(t, state.IsOpen)
	assert.Equal(t, 0, state.FailureCount)
}

func TestBreaker_SuccessDecrementsWithFloor(t *testing.T) {
	b := NewBreaker(5, time.Second)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, 0, b.State().FailureCount)
}

func TestClient_Chat_RetriesRetryableStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"overloaded"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"gpt-4o-mini","choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1000,"completion_tokens":1000,"prompt_tokens_details":{"cached_tokens":0}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, NewOpenAIProvider(server.URL, "sk-test", time.Second), nil)
	res, err := client.Chat(context.Background(), NewConversation(UserMessage("hi")), Options{})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, "hello", res.Text)
	assert.InDelta(t, 0.075, res.CostCents, 1e-9)
	assert.Equal(t, 0, client.BreakerState().FailureCount)
}

func TestClient_Chat_NonRetryableErrorRecordsOneFailure(t *testing.T) {
	p := &scriptedProvider{responses: []func(CompletionRequest) (*CompletionResponse, error){
		fail(&httpc.StatusError{StatusCode: http.StatusBadRequest, Body: "bad"}),
	}}
	client := newTestClient(t, p, nil)

	_, err := client.Chat(context.Background(), NewConversation(UserMessage("hi")), Options{})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLMUpstreamFailed))
	assert.Equal(t, 1, p.calls())
	assert.Equal(t, 1, client.BreakerState().FailureCount)
}

func TestClient_Chat_OpenBreakerSkipsUpstream(t *testing.T) {
	p := &scriptedProvider{responses: []func(CompletionRequest) (*CompletionResponse, error){
		fail(&httpc.StatusError{StatusCode: http.StatusInternalServerError}),
	}}
	client := newTestClient(t, p, NewBreaker(1, time.Hour))
	conv := NewConversation(UserMessage("hi"))

	_, err := client.Chat(context.Background(), conv, Options{})
	require.Error(t, err)
	assert.Equal(t, 3, p.calls())

	_, err = client.Chat(context.Background(), conv, Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCircuitOpen))
	assert.Equal(t, 3, p.calls())
}

func TestClient_Chat_DuplicateIdempotencyKey(t *testing.T) {
	p := &scriptedProvider{responses: []func(CompletionRequest) (*CompletionResponse, error){text("ok")}}
	client := newTestClient(t, p, nil)
	conv := NewConversation(UserMessage("hi"))

	_, err := client.Chat(context.Background(), conv, Options{IdempotencyKey: "req-1"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), conv, Options{IdempotencyKey: "req-1"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateRequest))
	assert.Equal(t, 1, p.calls())
}

func TestClient_Chat_CapsOutputTokens(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		expected  int
	}{
		{"below model limit", 800, 800},
		{"above model limit", 100000, 16384},
		{"unset uses model limit", 0, 16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{responses: []func(CompletionRequest) (*CompletionResponse, error){text("ok")}}
			client := newTestClient(t, p, nil)

			_, err := client.Chat(context.Background(), NewConversation(UserMessage("hi")), Options{MaxOutputTokens: tt.requested})

			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.requests[0].MaxTokens)
		})
	}
}

func TestClient_Embed(t *testing.T) {
	client := newTestClient(t, &scriptedProvider{}, nil)

	vectors, err := client.Embed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"request timeout", &httpc.StatusError{StatusCode: 408}, true},
		{"rate limited", &httpc.StatusError{StatusCode: 429}, true},
		{"server error", &httpc.StatusError{StatusCode: 502}, true},
		{"bad request", &httpc.StatusError{StatusCode: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"plain error", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestConversation_AppendDoesNotAlias(t *testing.T) {
	base := NewConversation(SystemMessage("sys"))
	a := base.Append(UserMessage("a"))
	b := base.Append(UserMessage("b"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "a", a.Messages()[1].Content)
	assert.Equal(t, "b", b.Messages()[1].Content)

	msgs := a.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "sys", a.Messages()[0].Content)
}
