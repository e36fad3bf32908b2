package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/repo-analyst/internal/core/llm"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Client は OpenAI Chat Completions を使った llm.Provider 実装
type Client struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

type clientOptions struct {
	model       string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	requestOpts []option.RequestOption
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTimeout はAPIコールのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithRetry はレート制限時のリトライ回数と基底待機時間を設定する
func WithRetry(maxRetries int, baseBackoff time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.maxRetries = maxRetries
		o.baseBackoff = baseBackoff
	}
}

// WithBaseURL は API のエンドポイントを差し替える（互換サーバーやテスト用）
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) {
		o.requestOpts = append(o.requestOpts, option.WithBaseURL(url))
	}
}

// NewClient はAPIキーを指定して Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		timeout:     DefaultTimeout,
		maxRetries:  MaxRetries,
		baseBackoff: BaseBackoff,
	}
	for _, opt := range opts {
		opt(&options)
	}

	requestOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		// リトライは generateWithRetry で制御する
		option.WithMaxRetries(0),
	}, options.requestOpts...)

	return &Client{
		client:      openai.NewClient(requestOpts...),
		model:       options.model,
		timeout:     options.timeout,
		maxRetries:  options.maxRetries,
		baseBackoff: options.baseBackoff,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はシステムメッセージとユーザーメッセージから応答を生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return "", err
			}
		}

		text, err := c.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRateLimitError(err) {
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func (c *Client) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
	return min(d, MaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// インターフェース実装の確認
var _ llm.Provider = (*Client)(nil)
