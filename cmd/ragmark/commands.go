// Package main provides the ragmark CLI entry point.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to
// its handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

// buildRunCmd creates the "run" command that executes one evaluation run.
func buildRunCmd() *cobra.Command {
	var (
		configPath  string
		datasetName string
		workers     int
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a labeled dataset through the pipeline and score it",
		Long: `Run one evaluation: every item of the dataset is sent through
retrieval and generation, scored for hit rate and groundedness, and
recorded to the trace sink and the local results file.

Item failures are recorded and do not stop the run. The run name,
item counts and elapsed time are printed at the end.`,
		Example: `  # Run with the default config file
  ragmark run

  # Run a specific dataset with four workers
  ragmark run --dataset support-faq --workers 4

  # Run with debug logging
  ragmark run --config ragmark.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), configPath, datasetName, workers, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&datasetName, "dataset", "",
		"Dataset to replay (overrides run.dataset from the config)")
	cmd.Flags().IntVar(&workers, "workers", 0,
		"Concurrent item workers (overrides run.workers; 1 is sequential)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	return cmd
}

// =============================================================================
// Dataset Commands
// =============================================================================

// buildDatasetCmd creates the "dataset" command group.
func buildDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage labeled evaluation datasets",
	}
	cmd.AddCommand(buildDatasetCreateCmd(), buildDatasetPopulateCmd(), buildDatasetListCmd())
	return cmd
}

func buildDatasetCreateCmd() *cobra.Command {
	var (
		configPath  string
		description string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new named dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetCreate(cmd.Context(), configPath, args[0], description)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&description, "description", "", "Dataset description")
	return cmd
}

func buildDatasetPopulateCmd() *cobra.Command {
	var (
		configPath string
		filePath   string
	)
	cmd := &cobra.Command{
		Use:   "populate <name>",
		Short: "Append items from a YAML or JSON file to a dataset",
		Long: `Append labeled items to an existing dataset. The item file is a list:

  - input: "How do I reset my password?"
    expected_output: "Use the reset link on the login page."
    metadata:
      expected_source_ids: ["faq-42"]

Items are validated before anything is written; file order becomes the
iteration order of the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetPopulate(cmd.Context(), configPath, args[0], filePath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Item file (.yaml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildDatasetListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored datasets with their item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetList(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Index Commands
// =============================================================================

// buildIndexCmd creates the "index" command group.
func buildIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the local retrieval index",
	}
	cmd.AddCommand(buildIndexBuildCmd())
	return cmd
}

func buildIndexBuildCmd() *cobra.Command {
	var (
		configPath string
		docsPath   string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed and index source documents",
		Long: `Load source documents into the local index. The document file is a list:

  - source_id: "faq-42"
    title: "Password reset"
    content: "You can reset your password via the link on the login page."

Existing source ids are replaced, so rebuilding is idempotent. The index
is locked exclusively while building.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexBuild(cmd.Context(), configPath, docsPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&docsPath, "docs", "", "Document file (.yaml or .json)")
	_ = cmd.MarkFlagRequired("docs")
	return cmd
}

// =============================================================================
// Check Command
// =============================================================================

// buildCheckCmd creates the "check" command that validates the setup.
func buildCheckCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and collaborator reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
