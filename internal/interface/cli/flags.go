package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-analyst/internal/core/analysis"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

// ServerStartFlags は server start コマンドのフラグ
func ServerStartFlags() []cli.Flag {
	return []cli.Flag{
		envFlag(),
		&cli.IntFlag{
			Name:  "port",
			Usage: "待ち受けポート（未指定時は PORT）",
		},
	}
}

// AnalyzeFlags は analyze コマンドのフラグ
func AnalyzeFlags() []cli.Flag {
	return []cli.Flag{
		envFlag(),
		&cli.StringFlag{
			Name:     "url",
			Usage:    "解析するリポジトリのURL",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "branch",
			Usage: "ブランチ・タグ・コミット（未指定時はデフォルトブランチ）",
		},
		&cli.BoolFlag{
			Name:  "refresh",
			Usage: "既存のチェックアウトを破棄して取得し直す",
		},
		&cli.BoolFlag{
			Name:  "github-api",
			Usage: "git clone の代わりに GitHub API でファイルを取得する",
		},
		&cli.StringSliceFlag{
			Name:  "include",
			Usage: "対象にするglobパターン（複数指定可）",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "除外するglobパターン（複数指定可）",
		},
		&cli.StringFlag{
			Name:  "query",
			Usage: "関連ファイルを検索する問い合わせ文",
		},
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "問い合わせ時の検索件数",
			Value: analysis.DefaultTopK,
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "出力形式 (json, yaml, markdown, html)",
			Value: string(OutputJSON),
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "出力先ファイル（未指定時は標準出力）",
		},
	}
}
