package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-analyst/internal/core/analysis"
	"github.com/jinford/repo-analyst/internal/interface/httpapi"
)

// AnalyzeAction はリポジトリを1回解析して結果を出力するコマンドのアクション
func AnalyzeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	format, err := ParseOutputFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	req := requestFromFlags(cmd)

	// 標準出力は成果物のために空けておく
	appCtx, err := NewAppContext(ctx, envFile, os.Stderr)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	if path := cmd.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("出力ファイルの作成に失敗: %w", err)
		}
		defer f.Close()
		out = f
	}

	return runAnalyze(ctx, appCtx.Container.Analysis, req, format, out, os.Stderr)
}

// requestFromFlags はフラグから解析リクエストを組み立てる。
// --include / --exclude が未指定なら既定のパターンを使う
func requestFromFlags(cmd *cli.Command) analysis.Request {
	req := analysis.Request{
		RepoURL:      cmd.String("url"),
		UseGitHubAPI: cmd.Bool("github-api"),
		Refresh:      cmd.Bool("refresh"),
		TopK:         int(cmd.Int("top-k")),
	}
	if cmd.IsSet("branch") {
		req.Branch = mo.Some(cmd.String("branch"))
	}
	if cmd.IsSet("query") {
		req.Query = mo.Some(cmd.String("query"))
	}
	if cmd.IsSet("include") {
		req.IncludeGlobs = cmd.StringSlice("include")
	}
	if cmd.IsSet("exclude") {
		req.ExcludeGlobs = cmd.StringSlice("exclude")
	}
	return req
}

func runAnalyze(ctx context.Context, analyzer httpapi.Analyzer, req analysis.Request, format OutputFormat, out, status io.Writer) error {
	resp, err := analyzer.Analyze(ctx, req)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(status, "✗ 解析に失敗しました: %v\n", err)
		return err
	}

	if err := Render(out, resp, format); err != nil {
		return fmt.Errorf("結果の出力に失敗: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Fprintf(status, "✓ %s の解析が完了しました", resp.RepoURL)
	fmt.Fprintf(status, " (%d artifacts)\n", len(resp.Artifacts))
	return nil
}
