package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/jinford/repo-analyst/internal/core/analysis"
)

// Analyzer は解析パイプラインの実行口
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Response, error)
}

// RunRequest は POST /analysis/run のリクエストボディ。
// include_globs / exclude_globs は省略時に既定値、空配列はエラー
type RunRequest struct {
	RepoURL      string   `json:"repo_url"`
	Branch       *string  `json:"branch"`
	UseGitHubAPI bool     `json:"use_github_api"`
	IncludeGlobs []string `json:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs"`
	Refresh      bool     `json:"refresh"`
	Query        *string  `json:"query"`
	TopK         int      `json:"top_k"`
}

// ToRequest はドメインのリクエストに変換する
func (r RunRequest) ToRequest() analysis.Request {
	return analysis.Request{
		RepoURL:      r.RepoURL,
		Branch:       mo.PointerToOption(r.Branch),
		UseGitHubAPI: r.UseGitHubAPI,
		IncludeGlobs: r.IncludeGlobs,
		ExcludeGlobs: r.ExcludeGlobs,
		Refresh:      r.Refresh,
		Query:        mo.PointerToOption(r.Query),
		TopK:         r.TopK,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// AnalysisHandler は解析APIのハンドラ
type AnalysisHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAnalysisHandler は AnalysisHandler を生成する
func NewAnalysisHandler(analyzer Analyzer, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{analyzer: analyzer, logger: logger}
}

// Run はリポジトリを解析して成果物を返す
func (h *AnalysisHandler) Run(c *gin.Context) {
	var body RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	resp, err := h.analyzer.Analyze(c.Request.Context(), body.ToRequest())
	if err != nil {
		h.handleError(c, err)
		return
	}

	// Mermaid の "-->" をエスケープしない
	c.PureJSON(http.StatusOK, resp)
}

// Health は死活監視用
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AnalysisHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
	default:
		h.logger.Error("解析に失敗しました",
			"requestId", c.GetString(requestIDKey),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
	}
}
