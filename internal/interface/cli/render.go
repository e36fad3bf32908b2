package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/jinford/repo-analyst/internal/core/analysis"
)

// OutputFormat は analyze コマンドの出力形式
type OutputFormat string

const (
	OutputJSON     OutputFormat = "json"
	OutputYAML     OutputFormat = "yaml"
	OutputMarkdown OutputFormat = "markdown"
	OutputHTML     OutputFormat = "html"
)

// ErrUnknownFormat は未対応の出力形式
var ErrUnknownFormat = errors.New("unknown output format")

// ParseOutputFormat は出力形式の文字列を解釈する
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputJSON, OutputYAML, OutputMarkdown, OutputHTML:
		return f, nil
	case "md":
		return OutputMarkdown, nil
	case "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Render は解析結果を指定形式で書き出す
func Render(w io.Writer, resp *analysis.Response, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(resp)
	case OutputMarkdown:
		_, err := io.WriteString(w, markdownReport(resp))
		return err
	case OutputHTML:
		return renderHTML(w, resp)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// markdownReport は成果物を1つの Markdown 文書にまとめる
func markdownReport(resp *analysis.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repository Analysis: %s\n", resp.RepoURL)

	for _, a := range resp.Artifacts {
		fmt.Fprintf(&b, "\n## %s\n\n", a.Name)
		switch a.Format {
		case analysis.FormatJSON, analysis.FormatMermaid:
			fmt.Fprintf(&b, "```%s\n%s\n```\n", a.Format, strings.TrimRight(a.Content, "\n"))
		default:
			b.WriteString(strings.TrimRight(a.Content, "\n"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderHTML(w io.Writer, resp *analysis.Response) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert([]byte(markdownReport(resp)), &body); err != nil {
		return fmt.Errorf("failed to convert markdown: %w", err)
	}

	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString("Repository Analysis: "+resp.RepoURL), body.String())
	return err
}
