package tokenizer

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/repo-analyst/internal/core/llm"
)

// Encoding は使用するエンコーディング名
const Encoding = "cl100k_base"

// runesPerToken はエンコーダが使えない場合の概算比
const runesPerToken = 4

// Counter はトークン数の計測と切り詰めを行う
type Counter struct {
	encoder *tiktoken.Tiktoken
}

// NewCounter は新しい Counter を作成する。
// エンコーディングを読み込めない場合は文字数ベースの概算で動作する
func NewCounter(logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	encoder, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		logger.Warn("tiktoken エンコーダを読み込めないため概算でトークン数を計算します", "error", err)
		return &Counter{}
	}
	return &Counter{encoder: encoder}
}

// Exact は tiktoken で計測しているかを返す
func (c *Counter) Exact() bool {
	return c.encoder != nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c.encoder == nil {
		return (utf8.RuneCountInString(text) + runesPerToken - 1) / runesPerToken
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// TrimToTokenLimit はテキストを limit トークン以内に切り詰める
func (c *Counter) TrimToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}

	if c.encoder == nil {
		maxRunes := limit * runesPerToken
		if utf8.RuneCountInString(text) <= maxRunes {
			return text
		}
		return string([]rune(text)[:maxRunes])
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}

	trimmed := c.encoder.Decode(tokens[:limit])
	// トークン境界がマルチバイト文字の途中にある場合は不完全な末尾を落とす
	for len(trimmed) > 0 {
		r, size := utf8.DecodeLastRuneInString(trimmed)
		if r != utf8.RuneError || size != 1 {
			break
		}
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}

var _ llm.TokenTrimmer = (*Counter)(nil)
