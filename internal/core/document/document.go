package document

// メタデータのキー
const (
	MetaSource   = "source"
	MetaLanguage = "language"
)

// Document はリポジトリから取り込んだ1ファイル分のテキスト
type Document struct {
	Path     string            // リポジトリルートからのPOSIX相対パス
	Content  string            // UTF-8 テキスト
	Metadata map[string]string // 少なくとも "source" を含む
}

// New は source メタデータを設定した Document を作成する
func New(path, content string) *Document {
	return &Document{
		Path:    path,
		Content: content,
		Metadata: map[string]string{
			MetaSource: path,
		},
	}
}

// ID はドキュメントの識別子（相対パス）を返す
func (d *Document) ID() string {
	return d.Path
}

// Paths はドキュメントのパス一覧を順序どおりに返す
func Paths(docs []*Document) []string {
	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		paths = append(paths, doc.Path)
	}
	return paths
}
