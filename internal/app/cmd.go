package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/tradedesk/internal/config"
	"github.com/hitoshi/tradedesk/internal/ideas"
	"github.com/hitoshi/tradedesk/internal/model"
)

// Version はビルド時に-ldflagsで上書きされる。
var Version = "dev"

// NewRootCmd はtradedeskのルートコマンドを生成する。
// サブコマンドなしで起動した場合はAPIサーバーとして動作する。
// wはログとコマンド出力の書き込み先。
func NewRootCmd(w io.Writer) *cobra.Command {
	serve := func(_ *cobra.Command, _ []string) error {
		return withConfig(w, "serve", runServe)
	}

	rootCmd := &cobra.Command{
		Use:           "tradedesk",
		Short:         "Trading ideas, newsletter and chat API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API server",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run the periodic cleanup worker",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return withConfig(w, "worker", runWorker)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return withConfig(w, "migrate", runMigrate)
			},
		},
		newHealthcheckCmd(),
		newIdeasCmd(),
	)

	return rootCmd
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	if args == nil {
		// nilのままだとcobraがos.Argsを読みにいく
		args = []string{}
	}
	cmd := NewRootCmd(w)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// withConfig は設定を読み込んでからfnを実行する。
func withConfig(w io.Writer, command string, fn func(*config.Config) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", command),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)
	return fn(cfg)
}

// newHealthcheckCmd はdistroless環境向けのヘルスチェックコマンドを生成する。
// 軽量に動かすため設定の読み込みは行わず、SERVER_PORTだけを参照する。
func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(port)
		},
	}
}

// ideaRowJSON はnormalizeコマンドの入力1行。
type ideaRowJSON struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Theme     string    `json:"theme"`
	Analysis  string    `json:"analysis"`
	Tickers   string    `json:"tickers"`
}

type ideaJSON struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Theme     string    `json:"theme"`
	Analysis  string    `json:"analysis"`
	Tickers   string    `json:"tickers"`
}

type normalizeOutput struct {
	Ideas    []ideaJSON `json:"ideas"`
	Bulk     bool       `json:"bulk"`
	Fallback bool       `json:"fallback"`
	Dropped  int        `json:"dropped"`
}

func newIdeasCmd() *cobra.Command {
	ideasCmd := &cobra.Command{
		Use:   "ideas",
		Short: "Offline tools for trading idea rows",
	}

	var file string
	normalizeCmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize raw trading_ideas rows read as JSON",
		Long: `Reads a JSON array of trading_ideas rows from --file (or stdin when
omitted or "-") and prints the normalized idea feed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("入力ファイルのオープンに失敗しました: %w", err)
				}
				defer f.Close()
				in = f
			}
			return normalizeIdeas(in, cmd.OutOrStdout())
		},
	}
	normalizeCmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with raw rows (default: stdin)")

	ideasCmd.AddCommand(normalizeCmd)
	return ideasCmd
}

// normalizeIdeas はrの行をNormalizeDetailedで正規化し、結果をwに書き出す。
func normalizeIdeas(r io.Reader, w io.Writer) error {
	var in []ideaRowJSON
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("入力JSONの解析に失敗しました: %w", err)
	}

	rows := make([]model.RawIdeaRow, len(in))
	for i, row := range in {
		rows[i] = model.RawIdeaRow(row)
	}

	res := ideas.NormalizeDetailed(rows)
	out := normalizeOutput{
		Ideas:    make([]ideaJSON, len(res.Ideas)),
		Bulk:     res.Bulk,
		Fallback: res.Fallback,
		Dropped:  res.Dropped,
	}
	for i, idea := range res.Ideas {
		out.Ideas[i] = ideaJSON(idea)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("結果の書き出しに失敗しました: %w", err)
	}
	return nil
}
