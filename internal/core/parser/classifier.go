package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// sniffSize はテキスト判定で読み込む先頭バイト数
const sniffSize = 1024

// textualExtensions は内容を読まずにテキストとみなす拡張子
var textualExtensions = map[string]struct{}{
	".py": {}, ".md": {}, ".json": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".ini": {}, ".cfg": {}, ".txt": {}, ".csv": {}, ".tsv": {}, ".js": {},
	".ts": {}, ".tsx": {}, ".jsx": {}, ".java": {}, ".go": {}, ".rs": {},
	".rb": {}, ".php": {}, ".c": {}, ".cpp": {}, ".cxx": {}, ".scala": {},
}

// HasTextualExtension は拡張子だけでテキストと判定できるかを返す
func HasTextualExtension(p string) bool {
	_, ok := textualExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// IsTextFile はファイルがテキストかどうかを判定する。
// 既知の拡張子は即座に true、それ以外は先頭 1024 バイトに NUL を含まず UTF-8 として妥当な場合に true
func IsTextFile(filePath string) (bool, error) {
	if HasTextualExtension(filePath) {
		return true, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("failed to read file: %w", err)
	}

	return IsTextContent(buf[:n], n == sniffSize), nil
}

// IsTextContent はバイト列がテキストかどうかを判定する。
// truncated が true の場合、末尾で途切れたマルチバイト文字は許容する
func IsTextContent(chunk []byte, truncated bool) bool {
	if bytes.IndexByte(chunk, 0) >= 0 {
		return false
	}
	if truncated {
		chunk = trimPartialRune(chunk)
	}
	return utf8.Valid(chunk)
}

// trimPartialRune は末尾の不完全な UTF-8 シーケンスを取り除く
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c&0xC0 != 0x80 {
			// 先頭バイトを見つけたら、その文字が完結しているかを確認する
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// MatchesAny はパスがいずれかのパターンに一致するかを返す。
// シェル形式の照合で "*" は "/" をまたいで一致する。
// 加えて doublestar 形式でも照合し、先頭の "**/" はルート直下のファイルにも一致する
func MatchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if shellMatch(pattern, relPath) {
			return true
		}
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// shellGlobs はコンパイル済みのシェル形式パターン。コンパイルできないものは nil
var shellGlobs sync.Map // map[string]glob.Glob

// shellMatch は区切り文字なしでパターンを照合する（"*" が "/" にも一致する）
func shellMatch(pattern, relPath string) bool {
	cached, ok := shellGlobs.Load(pattern)
	if !ok {
		var compiled glob.Glob
		if g, err := glob.Compile(pattern); err == nil {
			compiled = g
		}
		cached, _ = shellGlobs.LoadOrStore(pattern, compiled)
	}
	g, _ := cached.(glob.Glob)
	return g != nil && g.Match(relPath)
}

// ValidatePatterns は不正なグロブパターンを検出する
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("empty glob pattern")
		}
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern: %q", pattern)
		}
	}
	return nil
}
