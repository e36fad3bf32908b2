package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jinford/repo-analyst/internal/core/document"
)

func docsOf(paths ...string) []*document.Document {
	docs := make([]*document.Document, 0, len(paths))
	for _, p := range paths {
		docs = append(docs, document.New(p, "content of "+p))
	}
	return docs
}

func TestBuildArchitecture(t *testing.T) {
	root := BuildArchitecture(docsOf("README.md", "src/module.py", "src/pkg/util.py", "docs/index.md"))

	assert.Equal(t, []string{"README.md"}, root.Files)
	assert.Equal(t, []string{"src", "docs"}, root.ChildNames())

	src, ok := root.Child("src")
	require.True(t, ok)
	assert.Equal(t, []string{"module.py"}, src.Files)

	pkg, ok := src.Child("pkg")
	require.True(t, ok)
	assert.Equal(t, []string{"util.py"}, pkg.Files)
}

func TestArchNode_MarshalJSONPreservesOrder(t *testing.T) {
	root := BuildArchitecture(docsOf("src/a.go", "README.md", "src/b.go", "cmd/main.go"))

	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{"src":{"__files__":["a.go","b.go"]},"__files__":["README.md"],"cmd":{"__files__":["main.go"]}}`, string(raw))
	assert.Equal(t, `{"src":{"__files__":["a.go","b.go"]},"__files__":["README.md"],"cmd":{"__files__":["main.go"]}}`, string(raw))
}

func TestArchNode_MarshalJSONEscapesReservedDirectory(t *testing.T) {
	root := BuildArchitecture(docsOf("__files__/x.txt", "y.txt"))

	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.Equal(t, `{"__files__/":{"__files__":["x.txt"]},"__files__":["y.txt"]}`, string(raw))
}

func TestArchNode_MarshalJSONEmpty(t *testing.T) {
	raw, err := json.Marshal(BuildArchitecture(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))

	indented, err := BuildArchitecture(nil).IndentedJSON()
	require.NoError(t, err)
	assert.Equal(t, `{}`, indented)
}

func TestArchNode_IndentedJSON(t *testing.T) {
	indented, err := BuildArchitecture(docsOf("src/<tag>.go")).IndentedJSON()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"src\": {\n    \"__files__\": [\n      \"<tag>.go\"\n    ]\n  }\n}", indented)
}

func TestArchNode_MarshalYAML(t *testing.T) {
	root := BuildArchitecture(docsOf("src/module.py", "README.md"))

	out, err := yaml.Marshal(root)
	require.NoError(t, err)
	assert.Equal(t, "src:\n    __files__:\n        - module.py\n__files__:\n    - README.md\n", string(out))
}

func TestBuildMermaidDiagram(t *testing.T) {
	root := BuildArchitecture(docsOf("README.md", "src/module.py", "my-lib/x.go"))

	diagram := BuildMermaidDiagram(root)
	assert.Equal(t, "graph TD\n"+
		"    Repo[Repository]\n"+
		"    Repo --> Repo_README.md[README.md]\n"+
		"    Repo --> Repo_src\n"+
		"    Repo_src --> Repo_src_module.py[module.py]\n"+
		"    Repo --> Repo_my_lib\n"+
		"    Repo_my_lib --> Repo_my_lib_x.go[x.go]", diagram)
}

func TestBuildMermaidDiagram_TruncatesWideDirectories(t *testing.T) {
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		paths = append(paths, name+".txt", "dir"+name+"/f.txt")
	}
	root := BuildArchitecture(docsOf(paths...))

	diagram := BuildMermaidDiagram(root)
	assert.Contains(t, diagram, "Repo --> Repo_j.txt[j.txt]")
	assert.NotContains(t, diagram, "Repo_k.txt")
	// ファイル一覧が1枠を使うため、子ディレクトリは9件まで
	assert.Contains(t, diagram, "Repo --> Repo_diri")
	assert.NotContains(t, diagram, "Repo_dirj")
}
