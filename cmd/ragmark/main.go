// Package main provides the ragmark CLI.
//
// ragmark benchmarks a retrieval-augmented generation pipeline against
// labeled datasets: every item is replayed through retrieve-then-generate,
// scored for retrieval hit rate and answer groundedness, and recorded to
// an OTLP trace sink plus a local JSONL results file.
//
// # Basic Usage
//
// Build the retrieval index:
//
//	ragmark index build --docs faq.yaml
//
// Create and fill a dataset:
//
//	ragmark dataset create support-faq --description "Customer FAQ eval set"
//	ragmark dataset populate support-faq --file items.yaml
//
// Run an evaluation:
//
//	ragmark run --dataset support-faq
//
// # Environment Variables
//
// Credentials are referenced from the config file with ${ENV} expansion:
//
//   - OPENAI_API_KEY: OpenAI API key for generation, judging and embeddings
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude generation models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "ragmark.yaml"

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragmark",
		Short: "ragmark - RAG evaluation harness",
		Long: `ragmark replays labeled datasets through a retrieval-augmented
generation pipeline and scores every item on two axes:

  hit rate       did retrieval surface an expected source document
  groundedness   is the generated answer supported by the retrieved context

Results stream to an OTLP trace sink and a local JSONL file as each
item finishes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildDatasetCmd(),
		buildIndexCmd(),
		buildCheckCmd(),
	)
	return rootCmd
}
