package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// アプリケーション設定
	App AppConfig

	// 解析パイプライン設定
	Analysis AnalysisConfig

	// Embedding設定
	Embedding EmbeddingConfig

	// 生成用LLM設定
	LLM LLMConfig

	// Git設定
	Git GitConfig

	// GitHub API設定
	GitHub GitHubConfig

	// 解析履歴の保存先（空の場合は保存しない）
	Database DatabaseConfig

	// ログ設定
	Log LogConfig
}

// AppConfig はHTTPサーバ関連の設定
type AppConfig struct {
	Name         string
	APIPrefix    string
	AllowOrigins []string
	Port         int
}

// AnalysisConfig はリポジトリ解析の設定
type AnalysisConfig struct {
	WorkspaceDir     string
	ChunkSize        int
	ChunkOverlap     int // 予約（チャンク分割は未使用）
	MaxFiles         int
	RespectGitignore bool
	QueryCacheSize   int
}

// EmbeddingConfig はEmbeddingプロバイダ設定
type EmbeddingConfig struct {
	Provider  string // "openai" / "gemini" / "none"
	Model     string
	Dimension int
}

// LLMConfig は生成モデル設定
type LLMConfig struct {
	Provider     string // "gemini" / "openai" / "none"
	Model        string
	GoogleAPIKey string
	OpenAIAPIKey string
	MaxTokens    int
	Temperature  float64
	PromptTokens int
}

// GitConfig はGit操作設定
type GitConfig struct {
	SSHKeyPath  string
	SSHPassword string // SSH秘密鍵のパスワード（パスフレーズ）
}

// GitHubConfig はGitHub API設定
type GitHubConfig struct {
	Token string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	URL string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

const (
	// DefaultEmbeddingModel は設定がない場合のEmbeddingモデル名
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultLLMModel は設定がない場合の生成モデル名
	DefaultLLMModel = "gemini-2.0-flash"
)

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	googleKey := getEnv("GOOGLE_API_KEY", "")
	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		App: AppConfig{
			Name:         getEnv("APP_NAME", "Repo RAG Analyst"),
			APIPrefix:    getEnv("API_PREFIX", "/api"),
			AllowOrigins: getEnvAsList("ALLOW_ORIGINS", []string{"*"}),
			Port:         getEnvAsInt("PORT", 8080),
		},
		Analysis: AnalysisConfig{
			WorkspaceDir:     getEnv("WORKSPACE_DIR", ".cache/workspace"),
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 750),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 150),
			MaxFiles:         getEnvAsInt("MAX_FILES", 500),
			RespectGitignore: getEnvAsBool("RESPECT_GITIGNORE", false),
			QueryCacheSize:   getEnvAsInt("QUERY_CACHE_SIZE", 256),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", "none")),
			Model:     getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 384),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(getEnv("LLM_PROVIDER", defaultLLMProvider(googleKey, openAIKey))),
			Model:        getEnv("LLM_MODEL", DefaultLLMModel),
			GoogleAPIKey: googleKey,
			OpenAIAPIKey: openAIKey,
			MaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 1200),
			Temperature:  getEnvAsFloat("LLM_TEMPERATURE", 0.3),
			PromptTokens: getEnvAsInt("LLM_PROMPT_TOKENS", 6000),
		},
		Git: GitConfig{
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
		},
		GitHub: GitHubConfig{
			Token: getEnv("GITHUB_TOKEN", ""),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Analysis.MaxFiles <= 0 {
		return nil, fmt.Errorf("MAX_FILES must be positive: %d", cfg.Analysis.MaxFiles)
	}

	return cfg, nil
}

// defaultLLMProvider は資格情報の有無からプロバイダを決める
func defaultLLMProvider(googleKey, openAIKey string) string {
	switch {
	case googleKey != "":
		return "gemini"
	case openAIKey != "":
		return "openai"
	default:
		return "none"
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数をスライスとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
