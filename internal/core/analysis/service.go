package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/repo-analyst/internal/core/document"
	"github.com/jinford/repo-analyst/internal/core/embedding"
	"github.com/jinford/repo-analyst/internal/core/fetch"
	"github.com/jinford/repo-analyst/internal/core/parser"
)

// 実行結果のラベル
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeFailure = "failure"
)

// RepositoryFetcher はリポジトリをローカルに取得する
type RepositoryFetcher interface {
	Lock(url string) func()
	Fetch(ctx context.Context, req fetch.Request) (string, error)
}

// DocumentParser はチェックアウトをドキュメントに変換する
type DocumentParser interface {
	Parse(ctx context.Context, root string, opts parser.Options) ([]*document.Document, error)
}

// VectorStore はリクエスト単位のベクトルストア
type VectorStore interface {
	Build(ctx context.Context, docs []*document.Document) error
	SimilaritySearch(ctx context.Context, query string, k int) ([]embedding.Result, error)
	ModelName() string
	ActiveModelName() string
	Dimension() int
	Len() int
	Vectors() [][]float32
}

// StoreFactory はリクエストごとに新しい VectorStore を生成する
type StoreFactory func() VectorStore

// RunRecord は保存対象の解析結果
type RunRecord struct {
	RepoURL        string
	Branch         string
	Documents      []*document.Document
	Vectors        [][]float32
	EmbeddingModel string
	Dimension      int
	LLMModel       string
	ArtifactCount  int
}

// RunRecorder は解析結果を永続化する
type RunRecorder interface {
	Record(ctx context.Context, run RunRecord) error
}

// Metrics はパイプラインの計測値を受け取る
type Metrics interface {
	ObserveRun(outcome string)
	ObserveStage(stage string, seconds float64)
	ObserveDocuments(n int)
}

// Service はリポジトリ解析パイプライン（取得→パース→埋め込み→成果物生成）
type Service struct {
	fetcher          RepositoryFetcher
	parser           DocumentParser
	newStore         StoreFactory
	generator        Generator
	recorder         RunRecorder
	metrics          Metrics
	logger           *slog.Logger
	maxFiles         int
	respectGitignore bool
	llmModel         string
}

type serviceOptions struct {
	logger           *slog.Logger
	recorder         RunRecorder
	metrics          Metrics
	maxFiles         int
	respectGitignore bool
	llmModel         string
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithMaxFiles は取り込むファイル数の上限を指定する
func WithMaxFiles(n int) ServiceOption {
	return func(o *serviceOptions) {
		o.maxFiles = n
	}
}

// WithRespectGitignore は .gitignore を考慮するかを指定する
func WithRespectGitignore(enabled bool) ServiceOption {
	return func(o *serviceOptions) {
		o.respectGitignore = enabled
	}
}

// WithRunRecorder は解析結果の保存先を指定する
func WithRunRecorder(recorder RunRecorder) ServiceOption {
	return func(o *serviceOptions) {
		o.recorder = recorder
	}
}

// WithMetrics は計測値の送り先を指定する
func WithMetrics(m Metrics) ServiceOption {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithLLMModelName は記録用の生成モデル名を指定する
func WithLLMModelName(name string) ServiceOption {
	return func(o *serviceOptions) {
		o.llmModel = name
	}
}

// NewService は新しい Service を作成する
func NewService(fetcher RepositoryFetcher, p DocumentParser, newStore StoreFactory, gen Generator, opts ...ServiceOption) *Service {
	options := serviceOptions{
		logger:   slog.Default(),
		maxFiles: 500,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		fetcher:          fetcher,
		parser:           p,
		newStore:         newStore,
		generator:        gen,
		recorder:         options.recorder,
		metrics:          options.metrics,
		logger:           options.logger,
		maxFiles:         options.maxFiles,
		respectGitignore: options.respectGitignore,
		llmModel:         options.llmModel,
	}
}

// Analyze はリポジトリを解析して成果物を返す
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	req, err := Normalize(req)
	if err != nil {
		s.observeRun(outcomeInvalid)
		return nil, err
	}

	resp, err := s.analyze(ctx, req)
	if err != nil {
		s.observeRun(outcomeFailure)
		s.logger.Error("リポジトリ解析に失敗しました", "repoURL", req.RepoURL, "error", err)
		return nil, err
	}

	s.observeRun(outcomeSuccess)
	s.logger.Info("リポジトリ解析が完了しました",
		"repoURL", req.RepoURL,
		"artifacts", len(resp.Artifacts),
		"elapsed", time.Since(started).String(),
	)
	return resp, nil
}

func (s *Service) analyze(ctx context.Context, req Request) (*Response, error) {
	unlock := s.fetcher.Lock(req.RepoURL)
	defer unlock()

	stage := time.Now()
	repoPath, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:          req.RepoURL,
		Branch:       req.Branch,
		Refresh:      req.Refresh,
		UseGitHubAPI: req.UseGitHubAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("リポジトリの取得に失敗: %w", err)
	}
	s.observeStage("fetch", stage)

	stage = time.Now()
	docs, err := s.parser.Parse(ctx, repoPath, parser.Options{
		Include:          req.IncludeGlobs,
		Exclude:          req.ExcludeGlobs,
		MaxFiles:         s.maxFiles,
		RespectGitignore: s.respectGitignore,
	})
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの解析に失敗: %w", err)
	}
	s.observeStage("parse", stage)
	if s.metrics != nil {
		s.metrics.ObserveDocuments(len(docs))
	}

	var store VectorStore
	if len(docs) > 0 {
		stage = time.Now()
		store = s.newStore()
		if err := store.Build(ctx, docs); err != nil {
			return nil, fmt.Errorf("ベクトルストアの構築に失敗: %w", err)
		}
		s.observeStage("embed", stage)
	}

	stage = time.Now()
	arch := BuildArchitecture(docs)
	artifacts, err := s.generateArtifacts(ctx, req, docs, store, arch)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		RepoURL:              req.RepoURL,
		Artifacts:            artifacts,
		ArchitectureMap:      arch,
		MermaidDiagram:       BuildMermaidDiagram(arch),
		OnboardingGuide:      BuildOnboardingGuide(docs),
		ChangeImpactAnalysis: BuildChangeImpact(docs),
	}
	s.observeStage("generate", stage)

	s.record(ctx, req, docs, store, len(artifacts))

	return resp, nil
}

func (s *Service) generateArtifacts(ctx context.Context, req Request, docs []*document.Document, store VectorStore, arch *ArchNode) ([]Artifact, error) {
	archJSON, err := arch.IndentedJSON()
	if err != nil {
		return nil, fmt.Errorf("アーキテクチャマップのシリアライズに失敗: %w", err)
	}

	artifacts := []Artifact{
		{Name: ArtifactSummary, Content: BuildSummary(ctx, s.generator, docs), Format: FormatMarkdown},
		{Name: ArtifactArchitecture, Content: archJSON, Format: FormatJSON},
		{Name: ArtifactDiagram, Content: BuildMermaidDiagram(arch), Format: FormatMermaid},
		{Name: ArtifactOnboarding, Content: BuildOnboardingGuide(docs), Format: FormatMarkdown},
		{Name: ArtifactChangeImpact, Content: BuildChangeImpact(docs), Format: FormatMarkdown},
	}

	if store == nil {
		return artifacts, nil
	}

	artifacts = append(artifacts, Artifact{
		Name:    ArtifactVectorStore,
		Content: fmt.Sprintf("Vector store constructed with %d documents using\nmodel `%s`.", store.Len(), store.ModelName()),
		Format:  FormatMarkdown,
	})

	if query, ok := req.Query.Get(); ok && strings.TrimSpace(query) != "" {
		results, err := store.SimilaritySearch(ctx, query, req.TopK)
		if err != nil {
			return nil, fmt.Errorf("類似検索に失敗: %w", err)
		}
		artifacts = append(artifacts, Artifact{
			Name:    ArtifactRelevantFiles,
			Content: formatRelevantFiles(query, results),
			Format:  FormatMarkdown,
		})
	}

	return artifacts, nil
}

func formatRelevantFiles(query string, results []embedding.Result) string {
	lines := []string{
		"## Relevant Files",
		"",
		fmt.Sprintf("Query: `%s`", query),
		"",
	}
	if len(results) == 0 {
		lines = append(lines, "No matching files.")
	}
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. `%s` (distance %.4f)", i+1, r.Document.Path, r.Distance))
	}
	return strings.Join(lines, "\n")
}

// record は解析結果を保存する。失敗してもリクエストは失敗させない
func (s *Service) record(ctx context.Context, req Request, docs []*document.Document, store VectorStore, artifactCount int) {
	if s.recorder == nil {
		return
	}

	run := RunRecord{
		RepoURL:       req.RepoURL,
		Branch:        req.Branch.OrEmpty(),
		Documents:     docs,
		LLMModel:      s.llmModel,
		ArtifactCount: artifactCount,
	}
	if store != nil {
		run.Vectors = store.Vectors()
		run.EmbeddingModel = store.ActiveModelName()
		run.Dimension = store.Dimension()
	}

	if err := s.recorder.Record(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("解析結果の保存に失敗しました", "repoURL", req.RepoURL, "error", err)
	}
}

func (s *Service) observeStage(name string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStage(name, time.Since(started).Seconds())
	}
}

func (s *Service) observeRun(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRun(outcome)
	}
}

// NewStoreFactory は embedding.Store を生成する StoreFactory を返す
func NewStoreFactory(cache *embedding.ModelCache, modelName string, opts ...embedding.StoreOption) StoreFactory {
	return func() VectorStore {
		return embedding.NewStore(cache, modelName, opts...)
	}
}

var _ VectorStore = (*embedding.Store)(nil)
