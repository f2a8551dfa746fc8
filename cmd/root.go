package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	flagVerbose  bool
	flagProvider string
	flagModel    string
)

var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Run an AI coding agent from the terminal",
	Long: `stitch streams model turns, repairs partial tool arguments as they
arrive, and executes approved tool calls against your machine.

Examples:
  stitch run "add error handling to main.go"
  stitch run "summarize this repo" --provider openai
  stitch replay session.jsonl              # replay a recorded chunk log
  stitch tools                             # list registered tools`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Provider override (anthropic, openai, gemini, scripted)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model override for the selected provider")
}

func setupLogging() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
