package analysis

import (
	"errors"

	"github.com/samber/mo"
)

// ErrInvalidRequest は解析リクエストの検証エラー
var ErrInvalidRequest = errors.New("invalid analysis request")

// Format は成果物の表現形式
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatMermaid  Format = "mermaid"
)

// 成果物名
const (
	ArtifactSummary       = "Repository Summary"
	ArtifactArchitecture  = "Architecture Map"
	ArtifactDiagram       = "Mermaid Diagram"
	ArtifactOnboarding    = "Onboarding Guide"
	ArtifactChangeImpact  = "Change Impact Analysis"
	ArtifactVectorStore   = "Vector Store"
	ArtifactRelevantFiles = "Relevant Files"
)

// DefaultTopK は問い合わせ時の既定の検索件数
const DefaultTopK = 5

// Artifact は生成された成果物
type Artifact struct {
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
	Format  Format `json:"format" yaml:"format"`
}

// Request は解析リクエスト。Include/Exclude が nil の場合は既定値を使う
type Request struct {
	RepoURL      string
	Branch       mo.Option[string]
	UseGitHubAPI bool
	IncludeGlobs []string
	ExcludeGlobs []string
	Refresh      bool
	Query        mo.Option[string] // 指定時は類似ファイルの成果物を追加する
	TopK         int
}

// Response は解析結果
type Response struct {
	RepoURL              string     `json:"repo_url" yaml:"repo_url"`
	Artifacts            []Artifact `json:"artifacts" yaml:"artifacts"`
	ArchitectureMap      *ArchNode  `json:"architecture_map" yaml:"architecture_map"`
	MermaidDiagram       string     `json:"mermaid_diagram" yaml:"mermaid_diagram"`
	OnboardingGuide      string     `json:"onboarding_guide" yaml:"onboarding_guide"`
	ChangeImpactAnalysis string     `json:"change_impact_analysis" yaml:"change_impact_analysis"`
}

// Artifact は名前で成果物を探す
func (r *Response) Artifact(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
