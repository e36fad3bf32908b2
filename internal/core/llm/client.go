package llm

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// DefaultTemperature は生成時の温度
	DefaultTemperature = 0.3
	// DefaultMaxTokens は生成トークン数の上限
	DefaultMaxTokens = 1200
	// fallbackEchoLimit はフォールバック文面に含めるプロンプトの最大文字数
	fallbackEchoLimit = 1200
)

// CompletionRequest はシステム/ユーザープロンプトの組
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider は生成APIのクライアント
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ModelName() string
}

// TokenTrimmer はトークン数の上限に収まるようにテキストを切り詰める
type TokenTrimmer interface {
	TrimToTokenLimit(text string, limit int) string
}

// FallbackRecorder はフォールバック発生を記録する
type FallbackRecorder interface {
	IncLLMFallback()
}

// Client は Provider を包み、失敗時に決定的なフォールバック文面を返す
type Client struct {
	provider     Provider
	logger       *slog.Logger
	temperature  float64
	maxTokens    int
	trimmer      TokenTrimmer
	promptTokens int
	recorder     FallbackRecorder
}

type clientOptions struct {
	logger       *slog.Logger
	temperature  float64
	maxTokens    int
	trimmer      TokenTrimmer
	promptTokens int
	recorder     FallbackRecorder
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithClientLogger はロガーを差し替える
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithGeneration は温度と最大出力トークン数を上書きする
func WithGeneration(temperature float64, maxTokens int) ClientOption {
	return func(o *clientOptions) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithPromptBudget はユーザープロンプトを limit トークンに切り詰める
func WithPromptBudget(trimmer TokenTrimmer, limit int) ClientOption {
	return func(o *clientOptions) {
		o.trimmer = trimmer
		o.promptTokens = limit
	}
}

// WithFallbackRecorder はフォールバック発生の記録先を指定する
func WithFallbackRecorder(recorder FallbackRecorder) ClientOption {
	return func(o *clientOptions) {
		o.recorder = recorder
	}
}

// NewClient は新しい Client を作成する。provider が nil なら常にフォールバックを返す
func NewClient(provider Provider, opts ...ClientOption) *Client {
	options := clientOptions{
		logger:      slog.Default(),
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		provider:     provider,
		logger:       options.logger,
		temperature:  options.temperature,
		maxTokens:    options.maxTokens,
		trimmer:      options.trimmer,
		promptTokens: options.promptTokens,
		recorder:     options.recorder,
	}
}

// IsConfigured は実際の生成APIが使えるかどうかを返す
func (c *Client) IsConfigured() bool {
	return c != nil && c.provider != nil
}

// ModelName は生成モデル名を返す。未設定なら空文字
func (c *Client) ModelName() string {
	if !c.IsConfigured() {
		return ""
	}
	return c.provider.ModelName()
}

// Generate はプロンプトからテキストを生成する。
// API呼び出しの失敗や空応答はフォールバック文面に置き換えるため、エラーは返さない
func (c *Client) Generate(ctx context.Context, system, user string) string {
	if !c.IsConfigured() {
		c.recordFallback()
		return FallbackText(system, user)
	}

	prompt := user
	if c.trimmer != nil && c.promptTokens > 0 {
		prompt = c.trimmer.TrimToTokenLimit(user, c.promptTokens)
	}

	text, err := c.provider.Complete(ctx, CompletionRequest{
		System:      system,
		User:        prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Warn("LLM呼び出しに失敗したためフォールバックを使用します",
			"model", c.provider.ModelName(),
			"error", err,
		)
		c.recordFallback()
		return FallbackText(system, user)
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("LLMの応答が空のためフォールバックを使用します", "model", c.provider.ModelName())
		c.recordFallback()
		return FallbackText(system, user)
	}

	return text
}

func (c *Client) recordFallback() {
	if c != nil && c.recorder != nil {
		c.recorder.IncLLMFallback()
	}
}

// FallbackText は資格情報が無い場合の決定的な応答を組み立てる
func FallbackText(system, user string) string {
	echo := truncateRunes("System: "+system+"\nUser: "+user, fallbackEchoLimit)

	var b strings.Builder
	b.WriteString("No Gemini credentials detected (or initialisation failed). ")
	b.WriteString("Here's a heuristic summary based on the\nprompts provided:\n\n")
	b.WriteString(echo)
	b.WriteString("\n\n(Configure GOOGLE_API_KEY to replace this fallback with real model generations.)")
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
