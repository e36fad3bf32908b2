package parser

import (
	"path/filepath"

	"github.com/go-enry/go-enry/v2"
)

// DetectLanguage はファイル名と内容から言語名を推定する。判定できない場合は空文字
func DetectLanguage(path string, content []byte) string {
	return enry.GetLanguage(filepath.Base(path), content)
}
