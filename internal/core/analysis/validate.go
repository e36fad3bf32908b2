package analysis

import (
	"fmt"
	"slices"
	"strings"

	giturls "github.com/whilp/git-urls"

	"github.com/jinford/repo-analyst/internal/core/parser"
)

// allowedSchemes はリポジトリURLとして受け付けるスキーム
var allowedSchemes = []string{"http", "https", "ssh", "git"}

// Normalize はリクエストを検証し、省略された項目に既定値を補う。
// 明示的に空のパターン一覧が渡された場合はエラー
func Normalize(req Request) (Request, error) {
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if err := validateRepoURL(req.RepoURL, req.UseGitHubAPI); err != nil {
		return Request{}, err
	}

	include, err := normalizeGlobs("include_globs", req.IncludeGlobs, parser.DefaultIncludeGlobs)
	if err != nil {
		return Request{}, err
	}
	exclude, err := normalizeGlobs("exclude_globs", req.ExcludeGlobs, parser.DefaultExcludeGlobs)
	if err != nil {
		return Request{}, err
	}
	req.IncludeGlobs = include
	req.ExcludeGlobs = exclude

	if branch, ok := req.Branch.Get(); ok && strings.TrimSpace(branch) == "" {
		return Request{}, fmt.Errorf("%w: branch must not be blank", ErrInvalidRequest)
	}

	if req.TopK < 0 {
		return Request{}, fmt.Errorf("%w: top_k must not be negative", ErrInvalidRequest)
	}
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}

	return req, nil
}

func normalizeGlobs(field string, globs, defaults []string) ([]string, error) {
	if globs == nil {
		return slices.Clone(defaults), nil
	}
	if len(globs) == 0 {
		return nil, fmt.Errorf("%w: %s: Pattern list cannot be empty", ErrInvalidRequest, field)
	}
	if err := parser.ValidatePatterns(globs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, field, err)
	}
	return globs, nil
}

func validateRepoURL(raw string, githubAPI bool) error {
	if raw == "" {
		return fmt.Errorf("%w: repo_url is required", ErrInvalidRequest)
	}

	u, err := giturls.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: repo_url is not a valid URL: %v", ErrInvalidRequest, err)
	}
	if !slices.Contains(allowedSchemes, u.Scheme) || u.Hostname() == "" {
		return fmt.Errorf("%w: repo_url must be a remote http(s), ssh or git URL", ErrInvalidRequest)
	}

	if githubAPI && !strings.EqualFold(u.Hostname(), "github.com") {
		return fmt.Errorf("%w: use_github_api requires a github.com repository URL", ErrInvalidRequest)
	}
	return nil
}
