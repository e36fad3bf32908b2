package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGit は呼び出しを記録し、clone 時に .git ディレクトリを作る
type fakeGit struct {
	calls    []string
	cloneErr error
}

func (g *fakeGit) Clone(ctx context.Context, url, destDir string) error {
	g.calls = append(g.calls, "clone")
	if g.cloneErr != nil {
		return g.cloneErr
	}
	return os.MkdirAll(filepath.Join(destDir, ".git"), 0o755)
}

func (g *fakeGit) Pull(ctx context.Context, repoPath string) error {
	g.calls = append(g.calls, "pull")
	return nil
}

func (g *fakeGit) Checkout(ctx context.Context, repoPath, branch string) error {
	g.calls = append(g.calls, "checkout:"+branch)
	return nil
}

type fakeDownloader struct {
	branch mo.Option[string]
	dest   string
}

func (d *fakeDownloader) Download(ctx context.Context, url string, branch mo.Option[string], destDir string) error {
	d.branch = branch
	d.dest = destDir
	return os.MkdirAll(destDir, 0o755)
}

func newTestFetcher(t *testing.T, git GitClient, opts ...FetcherOption) (*Fetcher, string) {
	t.Helper()
	workspace := filepath.Join(t.TempDir(), "workspace")
	opts = append([]FetcherOption{WithFetcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewFetcher(workspace, git, opts...), workspace
}

func TestWorkspacePath_IsSHA1OfURL(t *testing.T) {
	p := WorkspacePath("/ws", "https://github.com/org/repo.git")
	assert.Equal(t, "/ws", filepath.Dir(p))
	assert.Len(t, filepath.Base(p), 40)
	assert.Equal(t, p, WorkspacePath("/ws", "https://github.com/org/repo.git"))
	assert.NotEqual(t, p, WorkspacePath("/ws", "https://github.com/org/other.git"))
}

func TestFetcher_CloneThenPull(t *testing.T) {
	git := &fakeGit{}
	fetcher, workspace := newTestFetcher(t, git)
	url := "https://github.com/org/repo.git"

	path, err := fetcher.Fetch(context.Background(), Request{URL: url})
	require.NoError(t, err)
	assert.Equal(t, WorkspacePath(workspace, url), path)

	_, err = fetcher.Fetch(context.Background(), Request{URL: url})
	require.NoError(t, err)

	assert.Equal(t, []string{"clone", "pull"}, git.calls)
}

func TestFetcher_RefreshReclonesAndChecksOutBranch(t *testing.T) {
	git := &fakeGit{}
	fetcher, _ := newTestFetcher(t, git)
	url := "https://github.com/org/repo.git"

	path, err := fetcher.Fetch(context.Background(), Request{URL: url})
	require.NoError(t, err)
	marker := filepath.Join(path, "stale.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	_, err = fetcher.Fetch(context.Background(), Request{URL: url, Refresh: true, Branch: mo.Some("develop")})
	require.NoError(t, err)

	assert.Equal(t, []string{"clone", "clone", "checkout:develop"}, git.calls)
	assert.NoFileExists(t, marker)
}

func TestFetcher_NonGitDirectoryIsRecloned(t *testing.T) {
	git := &fakeGit{}
	fetcher, _ := newTestFetcher(t, git)
	url := "https://github.com/org/repo.git"

	require.NoError(t, os.MkdirAll(fetcher.Path(url), 0o755))

	_, err := fetcher.Fetch(context.Background(), Request{URL: url})
	require.NoError(t, err)
	assert.Equal(t, []string{"clone"}, git.calls)
}

func TestFetcher_CloneErrorPropagates(t *testing.T) {
	git := &fakeGit{cloneErr: errors.New("authentication required")}
	fetcher, _ := newTestFetcher(t, git)

	_, err := fetcher.Fetch(context.Background(), Request{URL: "https://example.com/private.git"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication required")
}

func TestFetcher_GitHubAPIMode(t *testing.T) {
	git := &fakeGit{}
	downloader := &fakeDownloader{}
	fetcher, workspace := newTestFetcher(t, git, WithTreeDownloader(downloader))
	url := "https://github.com/org/repo"

	path, err := fetcher.Fetch(context.Background(), Request{URL: url, UseGitHubAPI: true, Branch: mo.Some("main")})
	require.NoError(t, err)

	assert.Equal(t, WorkspacePath(workspace, url), path)
	assert.Equal(t, path, downloader.dest)
	assert.Equal(t, mo.Some("main"), downloader.branch)
	assert.Empty(t, git.calls)
}

func TestFetcher_GitHubAPIModeUnconfigured(t *testing.T) {
	fetcher, _ := newTestFetcher(t, &fakeGit{})

	_, err := fetcher.Fetch(context.Background(), Request{URL: "https://github.com/org/repo", UseGitHubAPI: true})
	require.ErrorIs(t, err, ErrGitHubAPIUnavailable)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("a")
	acquired := make(chan struct{})
	go func() {
		release := km.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	// 別キーはブロックされない
	otherUnlock := km.Lock("b")
	otherUnlock()

	unlock()
	unlock()
	<-acquired

	require.Eventually(t, func() bool { return km.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKeyedMutex_Concurrent(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := km.Lock("shared")
			defer release()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len())
}
