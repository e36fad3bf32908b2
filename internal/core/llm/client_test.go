package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	text    string
	err     error
	lastReq CompletionRequest
	calls   int
}

func (p *stubProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	p.calls++
	p.lastReq = req
	return p.text, p.err
}

func (p *stubProvider) ModelName() string { return "stub-llm" }

type prefixTrimmer struct{}

func (prefixTrimmer) TrimToTokenLimit(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

type countingRecorder struct{ n int }

func (r *countingRecorder) IncLLMFallback() { r.n++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_UnconfiguredReturnsFallback(t *testing.T) {
	rec := &countingRecorder{}
	client := NewClient(nil, WithClientLogger(discardLogger()), WithFallbackRecorder(rec))

	out := client.Generate(context.Background(), "sys prompt", "user prompt")

	assert.False(t, client.IsConfigured())
	assert.Empty(t, client.ModelName())
	assert.Contains(t, out, "System: sys prompt")
	assert.Contains(t, out, "User: user prompt")
	assert.Contains(t, out, "GOOGLE_API_KEY")
	assert.Equal(t, 1, rec.n)
}

func TestClient_ProviderSuccess(t *testing.T) {
	provider := &stubProvider{text: "generated summary"}
	client := NewClient(provider,
		WithClientLogger(discardLogger()),
		WithPromptBudget(prefixTrimmer{}, 5),
	)

	out := client.Generate(context.Background(), "system", "a long user prompt")

	assert.Equal(t, "generated summary", out)
	assert.True(t, client.IsConfigured())
	assert.Equal(t, "stub-llm", client.ModelName())
	assert.Equal(t, "system", provider.lastReq.System)
	assert.Equal(t, "a lon", provider.lastReq.User)
	assert.Equal(t, DefaultTemperature, provider.lastReq.Temperature)
	assert.Equal(t, DefaultMaxTokens, provider.lastReq.MaxTokens)
}

func TestClient_ProviderErrorOrEmptyFallsBack(t *testing.T) {
	for name, provider := range map[string]*stubProvider{
		"error": {err: errors.New("quota exceeded")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			rec := &countingRecorder{}
			client := NewClient(provider, WithClientLogger(discardLogger()), WithFallbackRecorder(rec))

			out := client.Generate(context.Background(), "s", "u")
			assert.Equal(t, FallbackText("s", "u"), out)
			assert.Equal(t, 1, provider.calls)
			assert.Equal(t, 1, rec.n)
		})
	}
}

func TestFallbackText_TruncatesEcho(t *testing.T) {
	user := strings.Repeat("é", 5000)
	out := FallbackText("sys", user)

	require.True(t, utf8.ValidString(out))
	echo := truncateRunes("System: sys\nUser: "+user, fallbackEchoLimit)
	assert.Equal(t, fallbackEchoLimit, utf8.RuneCountInString(echo))
	assert.Contains(t, out, echo)
	assert.NotContains(t, out, "System: sys\nUser: "+user)
}
