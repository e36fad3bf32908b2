package analysis

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jinford/repo-analyst/internal/core/document"
)

// FilesKey はシリアライズ時にファイル一覧を格納するキー
const FilesKey = "__files__"

// ArchNode はディレクトリ構造の木。子ディレクトリとファイル一覧を持ち、
// 挿入順（ファイル一覧が初めて現れた位置を含む）を保持する
type ArchNode struct {
	Files    []string
	children map[string]*ArchNode
	order    []archEntry
}

type archEntry struct {
	files bool
	name  string
}

// NewArchNode は空のノードを作成する
func NewArchNode() *ArchNode {
	return &ArchNode{children: make(map[string]*ArchNode)}
}

// BuildArchitecture はドキュメントのパスからディレクトリ木を構築する
func BuildArchitecture(docs []*document.Document) *ArchNode {
	root := NewArchNode()
	for _, doc := range docs {
		root.Insert(doc.Path)
	}
	return root
}

// Insert はスラッシュ区切りのパスを木に追加する
func (n *ArchNode) Insert(path string) {
	parts := strings.Split(path, "/")
	node := n
	for _, dir := range parts[:len(parts)-1] {
		if dir == "" {
			continue
		}
		node = node.child(dir)
	}
	node.addFile(parts[len(parts)-1])
}

func (n *ArchNode) child(name string) *ArchNode {
	if c, ok := n.children[name]; ok {
		return c
	}
	c := NewArchNode()
	n.children[name] = c
	n.order = append(n.order, archEntry{name: name})
	return c
}

func (n *ArchNode) addFile(name string) {
	if n.Files == nil {
		n.order = append(n.order, archEntry{files: true})
	}
	n.Files = append(n.Files, name)
}

// Child は子ディレクトリを返す
func (n *ArchNode) Child(name string) (*ArchNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

// ChildNames は子ディレクトリ名を挿入順に返す
func (n *ArchNode) ChildNames() []string {
	names := make([]string, 0, len(n.children))
	for _, e := range n.order {
		if !e.files {
			names = append(names, e.name)
		}
	}
	return names
}

// IsEmpty はファイルも子ディレクトリも持たないかを返す
func (n *ArchNode) IsEmpty() bool {
	return n == nil || len(n.order) == 0
}

// wireKey は子ディレクトリのシリアライズ時のキーを返す。
// FilesKey と同名のディレクトリはファイル一覧と衝突しないよう末尾に "/" を付ける
func wireKey(name string) string {
	if name == FilesKey {
		return name + "/"
	}
	return name
}

// MarshalJSON は {"dir": {...}, "__files__": [...]} 形式の入れ子オブジェクトとして出力する
func (n *ArchNode) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range n.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if e.files {
			if err := writeJSON(&buf, FilesKey); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSON(&buf, n.Files); err != nil {
				return nil, err
			}
			continue
		}

		if err := writeJSON(&buf, wireKey(e.name)); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		child, err := n.children[e.name].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(child)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode が付与する改行を除く
	buf.Truncate(buf.Len() - 1)
	return nil
}

// MarshalYAML は挿入順を保った YAML マッピングを返す
func (n *ArchNode) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if n == nil {
		return node, nil
	}

	for _, e := range n.order {
		if e.files {
			files := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, f := range n.Files {
				files.Content = append(files.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f})
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: FilesKey},
				files,
			)
			continue
		}

		child, err := n.children[e.name].MarshalYAML()
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: wireKey(e.name)},
			child.(*yaml.Node),
		)
	}
	return node, nil
}

// IndentedJSON は成果物用にインデント付きの JSON を返す
func (n *ArchNode) IndentedJSON() (string, error) {
	raw, err := n.MarshalJSON()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
