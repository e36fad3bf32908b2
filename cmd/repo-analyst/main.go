package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	commands "github.com/jinford/repo-analyst/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "repo-analyst",
		Usage: "Git リポジトリを解析して概要・構成図・オンボーディング資料を生成する",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "HTTPサーバ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "HTTPサーバを起動",
						Flags:  commands.ServerStartFlags(),
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:   "analyze",
				Usage:  "リポジトリを解析して結果を出力",
				Flags:  commands.AnalyzeFlags(),
				Action: commands.AnalyzeAction,
			},
			{
				Name:   "history",
				Usage:  "直近の解析履歴を表示（DATABASE_URL が必要）",
				Flags:  commands.HistoryFlags(),
				Action: commands.HistoryAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
