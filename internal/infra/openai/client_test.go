package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-analyst/internal/core/llm"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [
		{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "generated text"}}
	],
	"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
}`

func TestClient_CompleteSendsSystemThenUser(t *testing.T) {
	var received struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), llm.CompletionRequest{
		System:      "You summarize codebases.",
		User:        "Summarize this.",
		Temperature: 0.3,
		MaxTokens:   1200,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)

	assert.Equal(t, DefaultModel, received.Model)
	assert.InDelta(t, 0.3, received.Temperature, 1e-9)
	assert.Equal(t, 1200, received.MaxTokens)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "You summarize codebases.", received.Messages[0].Content)
	assert.Equal(t, "user", received.Messages[1].Role)
}

func TestClient_CompleteRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL+"/"), WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), llm.CompletionRequest{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CompleteDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL+"/"), WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.CompletionRequest{User: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	client, err := NewClient("key", WithModel("gpt-4.1"), WithModel(""))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", client.ModelName())
}
