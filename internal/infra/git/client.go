package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"

	"github.com/jinford/repo-analyst/internal/core/fetch"
)

// tokenUsername は HTTPS でトークン認証する際のユーザー名
const tokenUsername = "x-access-token"

// Client は go-git によるリポジトリ取得を提供する
type Client struct {
	sshKeyPath  string
	sshPassword string
	token       string
	progress    io.Writer
	logger      *slog.Logger
}

type clientOptions struct {
	sshKeyPath  string
	sshPassword string
	token       string
	progress    io.Writer
	logger      *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithSSHKey は SSH URL で使う秘密鍵を指定する
func WithSSHKey(path, password string) ClientOption {
	return func(o *clientOptions) {
		o.sshKeyPath = path
		o.sshPassword = password
	}
}

// WithToken は HTTPS URL で使うアクセストークンを指定する
func WithToken(token string) ClientOption {
	return func(o *clientOptions) {
		o.token = token
	}
}

// WithProgress はクローン・フェッチの進捗出力先を指定する
func WithProgress(w io.Writer) ClientOption {
	return func(o *clientOptions) {
		o.progress = w
	}
}

// WithClientLogger はロガーを差し替える
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(opts ...ClientOption) *Client {
	options := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		sshKeyPath:  options.sshKeyPath,
		sshPassword: options.sshPassword,
		token:       options.token,
		progress:    options.progress,
		logger:      options.logger,
	}
}

// Clone は Git リポジトリをクローンする
func (c *Client) Clone(ctx context.Context, url, destDir string) error {
	auth, err := c.authFor(url)
	if err != nil {
		return err
	}

	_, err = git.PlainCloneContext(ctx, destDir, false, &git.CloneOptions{
		URL:      url,
		Auth:     auth,
		Progress: c.progress,
	})
	if err != nil {
		// 中途半端なクローンを残さない
		_ = os.RemoveAll(destDir)
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	return nil
}

// Pull は origin をフェッチし、現在のブランチをリモートの先端に合わせる
func (c *Client) Pull(ctx context.Context, repoPath string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return fmt.Errorf("failed to get remote: %w", err)
	}

	var url string
	if urls := remote.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	auth, err := c.authFor(url)
	if err != nil {
		return err
	}

	err = remote.FetchContext(ctx, &git.FetchOptions{
		Auth:     auth,
		Progress: c.progress,
		Force:    true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		// タグやコミットを直接チェックアウトしている場合は追従先がない
		c.logger.Debug("HEAD がブランチではないため更新をスキップします", "path", repoPath, "head", head.Hash().String())
		return nil
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, head.Name().Short()), true)
	if err != nil {
		c.logger.Debug("追跡するリモートブランチが見つかりません", "path", repoPath, "branch", head.Name().Short())
		return nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to update branch %s: %w", head.Name().Short(), err)
	}

	return nil
}

// Checkout は branch をチェックアウトする。
// ローカルブランチ、origin のブランチ、タグやコミットの順に解決する
func (c *Client) Checkout(ctx context.Context, repoPath, branch string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	localName := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(localName, true); err == nil {
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: localName, Force: true}); err != nil {
			return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
		}
		return nil
	}

	if remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true); err == nil {
		err := worktree.Checkout(&git.CheckoutOptions{
			Branch: localName,
			Hash:   remoteRef.Hash(),
			Create: true,
			Force:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
		}
		return nil
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(branch))
	if err != nil {
		return fmt.Errorf("failed to resolve ref %s: %w", branch, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

// authFor は URL のスキームに応じた認証方法を返す。認証不要なら nil
func (c *Client) authFor(url string) (transport.AuthMethod, error) {
	if url == "" {
		return nil, nil
	}

	u, err := giturls.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse git URL: %w", err)
	}

	switch u.Scheme {
	case "ssh":
		return c.sshAuth(u.User.Username())
	case "http", "https":
		if c.token == "" {
			return nil, nil
		}
		return &http.BasicAuth{Username: tokenUsername, Password: c.token}, nil
	default:
		return nil, nil
	}
}

func (c *Client) sshAuth(user string) (transport.AuthMethod, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}

	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		c.logger.Warn("SSH 鍵が見つからないため認証なしで接続します", "path", c.sshKeyPath)
		return nil, nil
	}

	if user == "" {
		user = "git"
	}
	auth, err := ssh.NewPublicKeysFromFile(user, c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}

	return auth, nil
}

var _ fetch.GitClient = (*Client)(nil)
