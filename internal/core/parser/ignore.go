package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFiles は読み込む ignore ファイル名
var ignoreFiles = []string{".gitignore", ".analystignore"}

// IgnoreFilter はリポジトリ直下の ignore ファイルに基づいてパスを除外する
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は repoPath 直下の .gitignore と .analystignore を読み込む。
// どちらも存在しない場合は何も除外しないフィルタを返す
func NewIgnoreFilter(repoPath string) (*IgnoreFilter, error) {
	var patterns []string

	for _, name := range ignoreFiles {
		p := filepath.Join(repoPath, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		lines, err := readIgnoreFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}

	if len(patterns) == 0 {
		return &IgnoreFilter{}, nil
	}

	return &IgnoreFilter{
		patterns: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// ShouldIgnore はパスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(relPath)
}

// readIgnoreFile は空行とコメント行を除いたパターンを返す
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	return patterns, nil
}
