package analysis

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/jinford/repo-analyst/internal/core/document"
)

const (
	summarySystemPrompt = "You summarize codebases for onboarding engineers."

	emptySummary    = "No textual documents were discovered in the repository."
	emptyOnboarding = "Repository appears empty; nothing to onboard."
	emptyImpact     = "No changes detected; repository contains no textual files."

	rootBucket = "<root>"

	maxTopBuckets   = 8
	maxReadmeLines  = 12
	maxSampleFiles  = 10
	maxGuideFiles   = 5
	maxPromptSample = 10
)

// Generator はプロンプトからテキストを生成する
type Generator interface {
	Generate(ctx context.Context, system, user string) string
	IsConfigured() bool
}

// BuildSummary は LLM が利用可能ならその生成結果を、そうでなければヒューリスティックな要約を返す
func BuildSummary(ctx context.Context, gen Generator, docs []*document.Document) string {
	if len(docs) == 0 {
		return emptySummary
	}
	if gen != nil && gen.IsConfigured() {
		return gen.Generate(ctx, summarySystemPrompt, summaryUserPrompt(docs))
	}
	return HeuristicSummary(docs)
}

func summaryUserPrompt(docs []*document.Document) string {
	var b strings.Builder
	b.WriteString("Provide a high-level summary of this repository.\n")
	fmt.Fprintf(&b, "There are %d textual documents. Here are sample file paths:\n", len(docs))
	b.WriteString(bulletPaths(docs, maxPromptSample))
	return b.String()
}

// HeuristicSummary は拡張子・ディレクトリの分布と README の抜粋から要約を組み立てる
func HeuristicSummary(docs []*document.Document) string {
	extCounts := newCounter()
	dirCounts := newCounter()
	for _, doc := range docs {
		ext := strings.ToLower(pathSuffix(doc.Path))
		if ext == "" {
			ext = rootBucket
		}
		extCounts.add(ext)
		dirCounts.add(topDirectory(doc.Path))
	}

	lines := []string{
		"## Repository Overview",
		fmt.Sprintf("- Total textual documents processed: %d", len(docs)),
		"- Primary languages / file types:",
		orDefault(countLines(extCounts.mostCommon(maxTopBuckets)), "  - Not enough information to detect languages."),
		"- Key directories:",
		orDefault(countLines(dirCounts.mostCommon(maxTopBuckets)), "  - Files are mostly at the repository root."),
	}

	if readme := findReadme(docs); readme != nil {
		if excerpt := readmeExcerpt(readme.Content, maxReadmeLines); len(excerpt) > 0 {
			lines = append(lines, "\n### README Highlights", strings.Join(excerpt, "\n"))
		}
	}

	lines = append(lines, "\n### Sample Files Considered", bulletPaths(docs, maxSampleFiles))

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// BuildOnboardingGuide は主要ファイルを挙げたオンボーディング手順を返す
func BuildOnboardingGuide(docs []*document.Document) string {
	if len(docs) == 0 {
		return emptyOnboarding
	}

	return strings.Join([]string{
		"## Onboarding Guide",
		"",
		"1. Clone the repository and install dependencies.",
		"2. Review the primary project files:",
		bulletPaths(docs, maxGuideFiles),
		"3. Run the automated tests to validate the setup.",
		"4. Explore remaining modules following the architecture map.",
	}, "\n")
}

// BuildChangeImpact は拡張子の分布（初出順）から変更影響の注意点を返す
func BuildChangeImpact(docs []*document.Document) string {
	if len(docs) == 0 {
		return emptyImpact
	}

	counts := newCounter()
	for _, doc := range docs {
		ext := pathSuffix(doc.Path)
		if ext == "" {
			ext = rootBucket
		}
		counts.add(ext)
	}

	dist := make([]string, 0, len(counts.keys))
	for _, key := range counts.keys {
		dist = append(dist, fmt.Sprintf("- `%s`: %d files", key, counts.counts[key]))
	}

	return strings.Join([]string{
		"## Change Impact Considerations",
		"",
		"When modifying this repository, pay attention to the following file type distribution:",
		strings.Join(dist, "\n"),
		"",
		"Use the vector search endpoint to validate whether changes impact related files.",
	}, "\n")
}

// pathSuffix はファイル名の最後の "." 以降を返す。先頭のドットのみ、または末尾のドットは拡張子とみなさない
func pathSuffix(p string) string {
	name := path.Base(p)
	i := strings.LastIndex(name, ".")
	if i > 0 && i < len(name)-1 {
		return name[i:]
	}
	return ""
}

func topDirectory(p string) string {
	if dir, _, ok := strings.Cut(p, "/"); ok {
		return dir
	}
	return rootBucket
}

func findReadme(docs []*document.Document) *document.Document {
	for _, doc := range docs {
		if strings.HasPrefix(strings.ToLower(path.Base(doc.Path)), "readme") {
			return doc
		}
	}
	return nil
}

func readmeExcerpt(content string, limit int) []string {
	normalized := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(content)
	var lines []string
	for _, line := range strings.Split(normalized, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimRightFunc(line, unicode.IsSpace))
		if len(lines) == limit {
			break
		}
	}
	return lines
}

func bulletPaths(docs []*document.Document, limit int) string {
	n := min(limit, len(docs))
	lines := make([]string, 0, n)
	for _, doc := range docs[:n] {
		lines = append(lines, fmt.Sprintf("- `%s`", doc.Path))
	}
	return strings.Join(lines, "\n")
}

func countLines(entries []countEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		unit := "files"
		if e.count == 1 {
			unit = "file"
		}
		lines = append(lines, fmt.Sprintf("- `%s`: %d %s", e.key, e.count, unit))
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// counter は初出順を保持する出現回数カウンタ
type counter struct {
	keys   []string
	counts map[string]int
}

type countEntry struct {
	key   string
	count int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.counts[key]++
}

// mostCommon は回数の降順（同数は初出順）に最大 n 件を返す
func (c *counter) mostCommon(n int) []countEntry {
	entries := make([]countEntry, 0, len(c.keys))
	for _, k := range c.keys {
		entries = append(entries, countEntry{key: k, count: c.counts[k]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count > entries[j].count
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
