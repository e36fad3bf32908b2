package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"github.com/samber/mo"
	giturls "github.com/whilp/git-urls"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jinford/repo-analyst/internal/core/fetch"
)

const (
	// maxBlobSize を超えるファイルは取得しない
	maxBlobSize = 1024 * 1024

	// defaultRate は API 呼び出しの上限（回/秒）
	defaultRate = 1.2
)

// ErrNotGitHubURL は GitHub のリポジトリURLでないことを示す
var ErrNotGitHubURL = errors.New("not a github repository url")

// Downloader は GitHub の Git Data API でファイルツリーを展開する
type Downloader struct {
	client  *gh.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type downloaderOptions struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	rate       float64
}

// DownloaderOption は Downloader のオプション設定
type DownloaderOption func(*downloaderOptions)

// WithDownloaderLogger はロガーを差し替える
func WithDownloaderLogger(logger *slog.Logger) DownloaderOption {
	return func(o *downloaderOptions) {
		o.logger = logger
	}
}

// WithHTTPClient はトークン認証の代わりに使う HTTP クライアントを指定する
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(o *downloaderOptions) {
		o.httpClient = c
	}
}

// WithBaseURL は API のベースURLを差し替える（GitHub Enterprise やテスト用）
func WithBaseURL(u string) DownloaderOption {
	return func(o *downloaderOptions) {
		o.baseURL = u
	}
}

// WithRate は1秒あたりの API 呼び出し数を指定する。0 以下なら無制限
func WithRate(perSecond float64) DownloaderOption {
	return func(o *downloaderOptions) {
		o.rate = perSecond
	}
}

// NewDownloader は新しい Downloader を作成する。token が空なら未認証でアクセスする
func NewDownloader(token string, opts ...DownloaderOption) (*Downloader, error) {
	options := downloaderOptions{
		logger: slog.Default(),
		rate:   defaultRate,
	}
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.httpClient
	if httpClient == nil && token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := gh.NewClient(httpClient)

	if options.baseURL != "" {
		base := options.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}

	limit := rate.Inf
	if options.rate > 0 {
		limit = rate.Limit(options.rate)
	}

	return &Downloader{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  options.logger,
	}, nil
}

// ParseRepository は URL から owner と repo を取り出す
func ParseRepository(repoURL string) (owner, repo string, err error) {
	u, err := giturls.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNotGitHubURL, err)
	}
	if !strings.EqualFold(u.Hostname(), "github.com") {
		return "", "", fmt.Errorf("%w: %s", ErrNotGitHubURL, repoURL)
	}

	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: missing owner or repository in %s", ErrNotGitHubURL, repoURL)
	}
	return parts[0], parts[1], nil
}

// Download はブランチ（未指定ならデフォルトブランチ）のツリーを destDir に展開する。
// 展開は一時ディレクトリで行い、完了後に destDir と置き換える
func (d *Downloader) Download(ctx context.Context, repoURL string, branch mo.Option[string], destDir string) error {
	owner, repo, err := ParseRepository(repoURL)
	if err != nil {
		return err
	}

	ref, err := d.resolveBranch(ctx, owner, repo, branch)
	if err != nil {
		return err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	tree, _, err := d.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return fmt.Errorf("failed to get tree %s/%s@%s: %w", owner, repo, ref, err)
	}
	if tree.GetTruncated() {
		d.logger.Warn("ツリーが大きすぎるため一部のみ取得します", "repo", owner+"/"+repo, "ref", ref)
	}

	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(destDir), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	written := 0
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		if entry.GetSize() > maxBlobSize {
			d.logger.Debug("サイズ超過のためスキップします", "path", entry.GetPath(), "size", entry.GetSize())
			continue
		}
		rel := filepath.FromSlash(entry.GetPath())
		if !filepath.IsLocal(rel) {
			d.logger.Warn("不正なパスをスキップします", "path", entry.GetPath())
			continue
		}

		content, err := d.fetchBlob(ctx, owner, repo, entry.GetSHA())
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", entry.GetPath(), err)
		}

		target := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", entry.GetPath(), err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", entry.GetPath(), err)
		}
		written++
	}

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("failed to remove existing checkout: %w", err)
	}
	if err := os.Rename(staging, destDir); err != nil {
		return fmt.Errorf("failed to move downloaded tree: %w", err)
	}

	d.logger.Info("GitHub API からファイルを取得しました", "repo", owner+"/"+repo, "ref", ref, "files", written)
	return nil
}

func (d *Downloader) resolveBranch(ctx context.Context, owner, repo string, branch mo.Option[string]) (string, error) {
	if b, ok := branch.Get(); ok && b != "" {
		return b, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	r, _, err := d.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	if r.GetDefaultBranch() == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
	}
	return r.GetDefaultBranch(), nil
}

func (d *Downloader) fetchBlob(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	blob, _, err := d.client.Git.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

var _ fetch.TreeDownloader = (*Downloader)(nil)
