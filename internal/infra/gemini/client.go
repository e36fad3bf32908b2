package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jinford/repo-analyst/internal/core/llm"
)

// DefaultModel はデフォルトの生成モデル
const DefaultModel = "gemini-2.0-flash"

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("Gemini API key not set: please set GOOGLE_API_KEY environment variable")

type options struct {
	model     string
	baseURL   string
	dimension int
}

// Option は Client / Embedder のオプション設定
type Option func(*options)

// WithModel はモデル名を上書きする
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL は API のエンドポイントを差し替える
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithDimension は Embedding の出力次元を指定する。0 ならモデルの既定次元
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

func newGenAIClient(ctx context.Context, apiKey string, o options) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyNotSet
	}
	cfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// Client は Gemini の GenerateContent を使った llm.Provider 実装
type Client struct {
	client *genai.Client
	model  string
}

// NewClient は新しい Client を作成する
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	o := options{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := newGenAIClient(ctx, apiKey, o)
	if err != nil {
		return nil, err
	}

	return &Client{client: client, model: o.model}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はシステム指示とユーザープロンプトから応答を生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.User}}}},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

var _ llm.Provider = (*Client)(nil)
