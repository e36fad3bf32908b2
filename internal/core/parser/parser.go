package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/jinford/repo-analyst/internal/core/document"
)

// DefaultIncludeGlobs は取り込み対象の既定パターン
var DefaultIncludeGlobs = []string{"**/*.md", "**/*.py", "**/*.json", "**/*.yaml", "**/*.yml"}

// DefaultExcludeGlobs は除外対象の既定パターン
var DefaultExcludeGlobs = []string{"**/.git/**", "**/node_modules/**", "**/dist/**"}

// Options は1回のパースの条件
type Options struct {
	Include          []string
	Exclude          []string
	MaxFiles         int
	RespectGitignore bool
}

// Parser はチェックアウト済みのリポジトリを Document に変換する
type Parser struct {
	logger *slog.Logger
}

type parserOptions struct {
	logger *slog.Logger
}

// ParserOption は Parser のオプション設定
type ParserOption func(*parserOptions)

// WithParserLogger はロガーを差し替える
func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(o *parserOptions) {
		o.logger = logger
	}
}

// NewParser は新しい Parser を作成する
func NewParser(opts ...ParserOption) *Parser {
	options := parserOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Parser{logger: options.logger}
}

// Parse は root 配下の通常ファイルを相対パスの昇順に走査し、条件に合うテキストファイルを返す。
// 結果は最大 MaxFiles 件
func (p *Parser) Parse(ctx context.Context, root string, opts Options) ([]*document.Document, error) {
	if opts.MaxFiles <= 0 {
		return nil, fmt.Errorf("max files must be positive: %d", opts.MaxFiles)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root is not a directory: %s", root)
	}

	var ignore *IgnoreFilter
	if opts.RespectGitignore {
		ignore, err = NewIgnoreFilter(root)
		if err != nil {
			return nil, err
		}
	}

	relPaths, err := listFiles(root)
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, 0, min(len(relPaths), opts.MaxFiles))
	var skipped int
	for _, rel := range relPaths {
		if len(docs) >= opts.MaxFiles {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ignore.ShouldIgnore(rel) {
			skipped++
			continue
		}
		if len(opts.Include) > 0 && !MatchesAny(rel, opts.Include) {
			skipped++
			continue
		}
		if MatchesAny(rel, opts.Exclude) {
			skipped++
			continue
		}

		doc, ok := p.readDocument(root, rel)
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}

	p.logger.Debug("リポジトリを走査しました",
		"root", root,
		"candidates", len(relPaths),
		"documents", len(docs),
		"skipped", skipped,
	)

	return docs, nil
}

// readDocument はファイルを読み込み、テキストでなければ false を返す
func (p *Parser) readDocument(root, rel string) (*document.Document, bool) {
	abs := filepath.Join(root, filepath.FromSlash(rel))

	isText, err := IsTextFile(abs)
	if err != nil || !isText {
		return nil, false
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		p.logger.Debug("ファイルの読み込みに失敗", "path", rel, "error", err)
		return nil, false
	}
	if !utf8.Valid(content) {
		return nil, false
	}

	doc := document.New(rel, string(content))
	if lang := DetectLanguage(rel, content); lang != "" {
		doc.Metadata[document.MetaLanguage] = lang
	}
	return doc, true
}

// listFiles は root 配下の通常ファイルの相対パスを昇順で返す。.git ディレクトリは辿らない
func listFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) && path != root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}
