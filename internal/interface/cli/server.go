package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-analyst/internal/interface/httpapi"
)

const shutdownTimeout = 10 * time.Second

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	if cmd.IsSet("port") {
		cfg.App.Port = int(cmd.Int("port"))
	}
	if appCtx.Logger().Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := httpapi.NewRouter(cfg.App, httpapi.RouterDeps{
		Analyzer: appCtx.Container.Analysis,
		Metrics:  appCtx.Container.Metrics,
		Logger:   appCtx.Logger(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, srv, appCtx.Logger())
}

// serve は ctx がキャンセルされるまでサーバを動かし、その後グレースフルに停止する
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTPサーバを起動しました", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("HTTPサーバを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバの停止に失敗: %w", err)
	}
	logger.Info("HTTPサーバを停止しました")
	return nil
}
