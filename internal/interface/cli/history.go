package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-analyst/internal/infra/postgres"
)

// ErrHistoryDisabled は DATABASE_URL 未設定で履歴を参照しようとしたことを示す
var ErrHistoryDisabled = errors.New("analysis history is disabled: set DATABASE_URL")

// HistoryReader は保存済みの解析履歴を読み出す
type HistoryReader interface {
	LatestRun(ctx context.Context, repoURL string) (*postgres.Run, error)
	Documents(ctx context.Context, runID uuid.UUID) ([]postgres.StoredDocument, error)
}

type historyDocument struct {
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	Size      int    `json:"size"`
	Dimension int    `json:"dimension"`
}

type historyView struct {
	Run       *postgres.Run     `json:"run"`
	Documents []historyDocument `json:"documents"`
}

// HistoryFlags は history コマンドのフラグ
func HistoryFlags() []cli.Flag {
	return []cli.Flag{
		envFlag(),
		&cli.StringFlag{
			Name:     "url",
			Usage:    "リポジトリのURL",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "JSONで出力する",
		},
	}
}

// HistoryAction は直近の解析履歴を表示するコマンドのアクション
func HistoryAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"), os.Stderr)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if appCtx.Container.History == nil {
		return ErrHistoryDisabled
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return runHistory(ctx, appCtx.Container.History, cmd.String("url"), cmd.Bool("json"), out)
}

func runHistory(ctx context.Context, reader HistoryReader, repoURL string, asJSON bool, out io.Writer) error {
	run, err := reader.LatestRun(ctx, repoURL)
	if err != nil {
		return fmt.Errorf("解析履歴の取得に失敗: %w", err)
	}
	stored, err := reader.Documents(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	view := historyView{Run: run, Documents: make([]historyDocument, 0, len(stored))}
	for _, d := range stored {
		view.Documents = append(view.Documents, historyDocument{
			Path:      d.Path,
			Language:  d.Language,
			Size:      d.Size,
			Dimension: len(d.Embedding),
		})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return writeHistoryText(out, view)
}

func writeHistoryText(out io.Writer, view historyView) error {
	run := view.Run
	color.New(color.Bold).Fprintf(out, "%s", run.RepoURL)
	fmt.Fprintf(out, " (%s)\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "run:        %s\n", run.ID)
	if run.Branch != "" {
		fmt.Fprintf(out, "branch:     %s\n", run.Branch)
	}
	fmt.Fprintf(out, "documents:  %d\n", run.DocumentCount)
	fmt.Fprintf(out, "artifacts:  %d\n", run.ArtifactCount)
	if run.EmbeddingModel != "" {
		fmt.Fprintf(out, "embedding:  %s (%d)\n", run.EmbeddingModel, run.EmbeddingDimension)
	}
	if run.LLMModel != "" {
		fmt.Fprintf(out, "llm:        %s\n", run.LLMModel)
	}

	if len(view.Documents) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tSIZE")
	for _, d := range view.Documents {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d.Path, d.Language, d.Size)
	}
	return tw.Flush()
}
