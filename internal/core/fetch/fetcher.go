package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/mo"
)

// ErrGitHubAPIUnavailable は GitHub API モードが構成されていないことを示す
var ErrGitHubAPIUnavailable = errors.New("github api fetching is not configured")

// GitClient はリポジトリの取得操作を提供する
type GitClient interface {
	Clone(ctx context.Context, url, destDir string) error
	Pull(ctx context.Context, repoPath string) error
	Checkout(ctx context.Context, repoPath, branch string) error
}

// TreeDownloader はホスティングサービスのAPI経由でファイルツリーを展開する
type TreeDownloader interface {
	Download(ctx context.Context, url string, branch mo.Option[string], destDir string) error
}

// Request は取得対象の指定
type Request struct {
	URL          string
	Branch       mo.Option[string]
	Refresh      bool
	UseGitHubAPI bool
}

// Fetcher はリポジトリをワークスペース配下の内容アドレス化されたディレクトリに取得する
type Fetcher struct {
	workspace string
	git       GitClient
	github    TreeDownloader
	locks     *KeyedMutex
	logger    *slog.Logger
}

type fetcherOptions struct {
	logger *slog.Logger
	github TreeDownloader
}

// FetcherOption は Fetcher のオプション設定
type FetcherOption func(*fetcherOptions)

// WithFetcherLogger はロガーを差し替える
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(o *fetcherOptions) {
		o.logger = logger
	}
}

// WithTreeDownloader は GitHub API モードで使う取得手段を指定する
func WithTreeDownloader(d TreeDownloader) FetcherOption {
	return func(o *fetcherOptions) {
		o.github = d
	}
}

// NewFetcher は新しい Fetcher を作成する
func NewFetcher(workspace string, git GitClient, opts ...FetcherOption) *Fetcher {
	options := fetcherOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	return &Fetcher{
		workspace: workspace,
		git:       git,
		github:    options.github,
		locks:     NewKeyedMutex(),
		logger:    options.logger,
	}
}

// WorkspacePath は URL の SHA-1 16進表現をディレクトリ名とするパスを返す
func WorkspacePath(workspace, url string) string {
	sum := sha1.Sum([]byte(url))
	return filepath.Join(workspace, hex.EncodeToString(sum[:]))
}

// Path は url に対応するチェックアウト先を返す
func (f *Fetcher) Path(url string) string {
	return WorkspacePath(f.workspace, url)
}

// Lock は url のチェックアウト先に対する排他ロックを取得する。
// 取得からパース完了まで保持することで同一URLの並行リクエストを直列化する
func (f *Fetcher) Lock(url string) func() {
	return f.locks.Lock(f.Path(url))
}

// Fetch はリポジトリを取得してローカルパスを返す。
// refresh 指定時は既存のチェックアウトを削除してから取得し直す
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	if err := os.MkdirAll(f.workspace, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	repoPath := f.Path(req.URL)

	if req.Refresh {
		if err := os.RemoveAll(repoPath); err != nil {
			return "", fmt.Errorf("failed to remove existing checkout: %w", err)
		}
	}

	var err error
	if req.UseGitHubAPI {
		err = f.fetchViaAPI(ctx, req, repoPath)
	} else {
		err = f.fetchViaGit(ctx, req, repoPath)
	}
	if err != nil {
		return "", err
	}
	return repoPath, nil
}

func (f *Fetcher) fetchViaGit(ctx context.Context, req Request, repoPath string) error {
	switch checkoutState(repoPath) {
	case stateGit:
		f.logger.Info("既存のチェックアウトを更新します", "url", req.URL, "path", repoPath)
		if err := f.git.Pull(ctx, repoPath); err != nil {
			return err
		}
	case stateOther:
		// API モードで展開したディレクトリなど、Git 管理外の内容は作り直す
		if err := os.RemoveAll(repoPath); err != nil {
			return fmt.Errorf("failed to remove non-git checkout: %w", err)
		}
		fallthrough
	default:
		f.logger.Info("リポジトリをクローンします", "url", req.URL, "path", repoPath)
		if err := f.git.Clone(ctx, req.URL, repoPath); err != nil {
			return err
		}
	}

	if branch, ok := req.Branch.Get(); ok && branch != "" {
		if err := f.git.Checkout(ctx, repoPath, branch); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) fetchViaAPI(ctx context.Context, req Request, repoPath string) error {
	if f.github == nil {
		return ErrGitHubAPIUnavailable
	}
	f.logger.Info("GitHub API 経由でファイルツリーを取得します", "url", req.URL, "path", repoPath)
	return f.github.Download(ctx, req.URL, req.Branch, repoPath)
}

type state int

const (
	stateMissing state = iota
	stateGit
	stateOther
)

func checkoutState(repoPath string) state {
	if _, err := os.Stat(repoPath); err != nil {
		return stateMissing
	}
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		return stateOther
	}
	return stateGit
}
