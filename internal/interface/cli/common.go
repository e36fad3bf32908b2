package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jinford/repo-analyst/internal/platform/config"
	"github.com/jinford/repo-analyst/internal/platform/container"
	"github.com/jinford/repo-analyst/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、コンテナを初期化して AppContext を作成する。
// logOutput が nil の場合は標準出力にログを書く
func NewAppContext(ctx context.Context, envFile string, logOutput io.Writer) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logCfg := logger.FromStrings(cfg.Log.Level, cfg.Log.Format)
	logCfg.Output = logOutput
	appLogger := logger.New(logCfg)

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
