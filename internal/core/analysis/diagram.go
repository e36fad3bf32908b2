package analysis

import (
	"fmt"
	"strings"
)

// 図に含める1ディレクトリあたりの上限
const (
	maxDiagramEntries = 10
	maxDiagramFiles   = 10
)

// BuildMermaidDiagram はディレクトリ木を mermaid の graph TD に変換する
func BuildMermaidDiagram(root *ArchNode) string {
	lines := []string{"graph TD", "    Repo[Repository]"}
	lines = walkDiagram(root, "Repo", lines)
	return strings.Join(lines, "\n")
}

func walkDiagram(node *ArchNode, prefix string, lines []string) []string {
	if node.IsEmpty() {
		return lines
	}

	entries := node.order
	if len(entries) > maxDiagramEntries {
		entries = entries[:maxDiagramEntries]
	}

	for _, e := range entries {
		if e.files {
			files := node.Files
			if len(files) > maxDiagramFiles {
				files = files[:maxDiagramFiles]
			}
			for _, name := range files {
				fileNode := nodeID(prefix, name)
				lines = append(lines, fmt.Sprintf("    %s --> %s[%s]", prefix, fileNode, name))
			}
			continue
		}

		child := nodeID(prefix, e.name)
		lines = append(lines, fmt.Sprintf("    %s --> %s", prefix, child))
		lines = walkDiagram(node.children[e.name], child, lines)
	}
	return lines
}

func nodeID(prefix, name string) string {
	return strings.ReplaceAll(prefix+"_"+name, "-", "_")
}
