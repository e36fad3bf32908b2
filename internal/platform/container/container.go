package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/repo-analyst/internal/core/analysis"
	"github.com/jinford/repo-analyst/internal/core/embedding"
	"github.com/jinford/repo-analyst/internal/core/fetch"
	"github.com/jinford/repo-analyst/internal/core/llm"
	"github.com/jinford/repo-analyst/internal/core/parser"
	"github.com/jinford/repo-analyst/internal/infra/gemini"
	"github.com/jinford/repo-analyst/internal/infra/git"
	"github.com/jinford/repo-analyst/internal/infra/github"
	"github.com/jinford/repo-analyst/internal/infra/openai"
	"github.com/jinford/repo-analyst/internal/infra/postgres"
	"github.com/jinford/repo-analyst/internal/infra/tokenizer"
	"github.com/jinford/repo-analyst/internal/platform/config"
	"github.com/jinford/repo-analyst/internal/platform/database"
	"github.com/jinford/repo-analyst/internal/platform/metrics"
)

// queryCacheTTL は問い合わせベクトルのキャッシュ保持期間
const queryCacheTTL = 30 * time.Minute

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	Analysis *analysis.Service
	Metrics  *metrics.Metrics
	// History は DATABASE_URL 設定時のみ非nil
	History  *postgres.RunRecorder

	llm      *llm.Client
	models   *embedding.ModelCache
	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger          *slog.Logger
	gitClient       fetch.GitClient
	downloader      fetch.TreeDownloader
	embeddingLoader embedding.Loader
	llmProvider     llm.Provider
	recorder        analysis.RunRecorder
	metrics         *metrics.Metrics
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerGitClient は GitClient を差し替える
func WithContainerGitClient(client fetch.GitClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.gitClient = client
	}
}

// WithContainerTreeDownloader は GitHub API 取得手段を差し替える
func WithContainerTreeDownloader(d fetch.TreeDownloader) ContainerOption {
	return func(opts *containerOptions) {
		opts.downloader = d
	}
}

// WithContainerEmbeddingLoader は Embedding モデルの読み込み方法を差し替える
func WithContainerEmbeddingLoader(loader embedding.Loader) ContainerOption {
	return func(opts *containerOptions) {
		opts.embeddingLoader = loader
	}
}

// WithContainerLLMProvider は生成プロバイダを差し替える
func WithContainerLLMProvider(provider llm.Provider) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmProvider = provider
	}
}

// WithContainerRunRecorder は解析結果の保存先を差し替える
func WithContainerRunRecorder(recorder analysis.RunRecorder) ContainerOption {
	return func(opts *containerOptions) {
		opts.recorder = recorder
	}
}

// WithContainerMetrics はメトリクスを差し替える
func WithContainerMetrics(m *metrics.Metrics) ContainerOption {
	return func(opts *containerOptions) {
		opts.metrics = m
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	m := options.metrics
	if m == nil {
		m = metrics.New()
	}

	// Fetcher (go-git / GitHub API)
	gitClient := options.gitClient
	if gitClient == nil {
		gitClient = git.NewClient(
			git.WithSSHKey(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword),
			git.WithToken(cfg.GitHub.Token),
			git.WithClientLogger(logger),
		)
	}
	downloader := options.downloader
	if downloader == nil {
		d, err := github.NewDownloader(cfg.GitHub.Token, github.WithDownloaderLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("GitHub クライアント初期化に失敗しました: %w", err)
		}
		downloader = d
	}
	fetcher := fetch.NewFetcher(cfg.Analysis.WorkspaceDir, gitClient,
		fetch.WithFetcherLogger(logger),
		fetch.WithTreeDownloader(downloader),
	)

	// Embedding
	loader := options.embeddingLoader
	if loader == nil {
		loader = newEmbeddingLoader(cfg, logger)
	}
	models := embedding.NewModelCache(loader)
	newStore := analysis.NewStoreFactory(models, cfg.Embedding.Model,
		embedding.WithStoreLogger(logger),
		embedding.WithFallbackDimension(cfg.Embedding.Dimension),
		embedding.WithFallbackRecorder(m),
	)

	// LLM
	provider := options.llmProvider
	if provider == nil {
		provider = newLLMProvider(ctx, cfg, logger)
	}
	llmClient := llm.NewClient(provider,
		llm.WithClientLogger(logger),
		llm.WithGeneration(cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		llm.WithPromptBudget(tokenizer.NewCounter(logger), cfg.LLM.PromptTokens),
		llm.WithFallbackRecorder(m),
	)

	// 解析履歴 (PostgreSQL)
	var (
		db      *database.Database
		history *postgres.RunRecorder
	)
	recorder := options.recorder
	if recorder == nil && cfg.Database.URL != "" {
		var err error
		db, err = database.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("スキーマ作成に失敗しました: %w", err)
		}
		history = postgres.NewRunRecorder(db.Transactions())
		recorder = history
	}

	serviceOpts := []analysis.ServiceOption{
		analysis.WithServiceLogger(logger),
		analysis.WithMaxFiles(cfg.Analysis.MaxFiles),
		analysis.WithRespectGitignore(cfg.Analysis.RespectGitignore),
		analysis.WithMetrics(m),
		analysis.WithLLMModelName(llmClient.ModelName()),
	}
	if recorder != nil {
		serviceOpts = append(serviceOpts, analysis.WithRunRecorder(recorder))
	}

	service := analysis.NewService(fetcher, parser.NewParser(parser.WithParserLogger(logger)), newStore, llmClient, serviceOpts...)

	logger.Info("サービスコンテナを初期化しました",
		"embeddingProvider", cfg.Embedding.Provider,
		"embeddingModel", cfg.Embedding.Model,
		"llmConfigured", llmClient.IsConfigured(),
		"llmModel", llmClient.ModelName(),
		"history", recorder != nil,
	)

	return &ServiceContainer{
		Analysis: service,
		Metrics:  m,
		History:  history,
		llm:      llmClient,
		models:   models,
		logger:   logger,
		database: db,
	}, nil
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// LLMConfigured は実際の生成モデルが使えるかを返す
func (c *ServiceContainer) LLMConfigured() bool {
	return c != nil && c.llm.IsConfigured()
}

// newEmbeddingLoader は設定されたプロバイダの Embedder を生成する Loader を返す。
// プロバイダ未設定なら nil（常にフォールバック）
func newEmbeddingLoader(cfg *config.Config, logger *slog.Logger) embedding.Loader {
	cacheSize := cfg.Analysis.QueryCacheSize

	switch cfg.Embedding.Provider {
	case "openai":
		return func(ctx context.Context, model string) (embedding.Embedder, error) {
			e, err := openai.NewEmbedder(cfg.LLM.OpenAIAPIKey,
				openai.WithEmbeddingModel(remoteModel(model, openai.DefaultEmbeddingModel)),
				openai.WithEmbeddingDimension(cfg.Embedding.Dimension),
			)
			if err != nil {
				return nil, err
			}
			return embedding.WrapWithLRU(e, cacheSize, queryCacheTTL), nil
		}
	case "gemini":
		return func(ctx context.Context, model string) (embedding.Embedder, error) {
			e, err := gemini.NewEmbedder(ctx, cfg.LLM.GoogleAPIKey,
				gemini.WithModel(remoteModel(model, gemini.DefaultEmbeddingModel)),
				gemini.WithDimension(cfg.Embedding.Dimension),
			)
			if err != nil {
				return nil, err
			}
			return embedding.WrapWithLRU(e, cacheSize, queryCacheTTL), nil
		}
	case "", "none":
		return nil
	default:
		logger.Warn("未知のEmbeddingプロバイダのためフォールバックを使用します", "provider", cfg.Embedding.Provider)
		return nil
	}
}

// remoteModel はローカル専用のモデル名をプロバイダの既定モデルに読み替える
func remoteModel(model, providerDefault string) string {
	if model == "" || strings.HasPrefix(model, "sentence-transformers/") {
		return providerDefault
	}
	return model
}

// newLLMProvider は設定されたプロバイダを生成する。初期化に失敗した場合は nil（フォールバック）
func newLLMProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) llm.Provider {
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.LLM.GoogleAPIKey, gemini.WithModel(cfg.LLM.Model))
		if err != nil {
			logger.Warn("Gemini クライアントを初期化できないためフォールバックを使用します", "error", err)
			return nil
		}
		return client
	case "openai":
		model := cfg.LLM.Model
		if strings.HasPrefix(model, "gemini") {
			model = openai.DefaultModel
		}
		client, err := openai.NewClient(cfg.LLM.OpenAIAPIKey, openai.WithModel(model))
		if err != nil {
			logger.Warn("OpenAI クライアントを初期化できないためフォールバックを使用します", "error", err)
			return nil
		}
		return client
	default:
		return nil
	}
}
