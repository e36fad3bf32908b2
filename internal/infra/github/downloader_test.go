package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	repoCalls atomic.Int32
	treeRef   atomic.Value
	blobCalls atomic.Int32
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	blobs := map[string]string{
		"b1": "# Example\n",
		"b2": "print('hi')\n",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/example", func(w http.ResponseWriter, r *http.Request) {
		f.repoCalls.Add(1)
		writeJSON(t, w, map[string]any{"name": "example", "default_branch": "trunk"})
	})
	mux.HandleFunc("GET /repos/octo/example/git/trees/{ref}", func(w http.ResponseWriter, r *http.Request) {
		f.treeRef.Store(r.PathValue("ref"))
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		writeJSON(t, w, map[string]any{
			"sha":       "t1",
			"truncated": false,
			"tree": []map[string]any{
				{"path": "README.md", "type": "blob", "sha": "b1", "size": 10},
				{"path": "src", "type": "tree", "sha": "t2"},
				{"path": "src/app.py", "type": "blob", "sha": "b2", "size": 12},
				{"path": "assets/huge.bin", "type": "blob", "sha": "b3", "size": 2 * 1024 * 1024},
				{"path": "../escape.txt", "type": "blob", "sha": "b4", "size": 1},
			},
		})
	})
	mux.HandleFunc("GET /repos/octo/example/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		f.blobCalls.Add(1)
		content, ok := blobs[r.PathValue("sha")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(content))
		// API は76文字ごとに改行を含めて返す
		writeJSON(t, w, map[string]any{"sha": r.PathValue("sha"), "encoding": "base64", "content": encoded + "\n"})
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestDownloader(t *testing.T, srv *httptest.Server) *Downloader {
	t.Helper()
	d, err := NewDownloader("",
		WithHTTPClient(srv.Client()),
		WithBaseURL(srv.URL),
		WithRate(0),
		WithDownloaderLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return d
}

func TestDownloader_DownloadDefaultBranch(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o644))

	d := newTestDownloader(t, srv)
	err := d.Download(context.Background(), "https://github.com/octo/example.git", mo.None[string](), dest)
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.repoCalls.Load())
	assert.Equal(t, "trunk", fake.treeRef.Load())
	assert.Equal(t, int32(2), fake.blobCalls.Load())

	readme, err := os.ReadFile(filepath.Join(dest, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Example\n", string(readme))

	app, err := os.ReadFile(filepath.Join(dest, "src", "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(app))

	assert.NoFileExists(t, filepath.Join(dest, "assets", "huge.bin"))
	assert.NoFileExists(t, filepath.Join(dest, "stale.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.txt"))
}

func TestDownloader_DownloadExplicitBranch(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "checkout")
	err := newTestDownloader(t, srv).Download(context.Background(), "git@github.com:octo/example.git", mo.Some("release"), dest)
	require.NoError(t, err)

	assert.Equal(t, int32(0), fake.repoCalls.Load())
	assert.Equal(t, "release", fake.treeRef.Load())
	assert.FileExists(t, filepath.Join(dest, "README.md"))
}

func TestDownloader_DownloadErrorKeepsExistingCheckout(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "keep.txt"), []byte("keep"), 0o644))

	err := newTestDownloader(t, srv).Download(context.Background(), "https://github.com/octo/example", mo.Some("main"), dest)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dest, "keep.txt"))
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{url: "https://github.com/octo/example", owner: "octo", repo: "example", ok: true},
		{url: "https://github.com/octo/example.git", owner: "octo", repo: "example", ok: true},
		{url: "git@github.com:octo/example.git", owner: "octo", repo: "example", ok: true},
		{url: "https://gitlab.com/octo/example", ok: false},
		{url: "https://github.com/octo", ok: false},
	}

	for _, tt := range tests {
		owner, repo, err := ParseRepository(tt.url)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrNotGitHubURL, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}
