// Package main provides the ragmark CLI entry point.
//
// handlers.go contains the RunE handler functions for all CLI commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/ragmark/internal/backoff"
	"github.com/haasonsaas/ragmark/internal/config"
	"github.com/haasonsaas/ragmark/internal/dataset"
	"github.com/haasonsaas/ragmark/internal/harness"
	"github.com/haasonsaas/ragmark/internal/index"
	"github.com/haasonsaas/ragmark/internal/llm"
	"github.com/haasonsaas/ragmark/internal/observability"
	"github.com/haasonsaas/ragmark/internal/pipeline"
	"github.com/haasonsaas/ragmark/internal/recorder"
	"github.com/haasonsaas/ragmark/internal/scoring"
)

// parseConfigFile reads and decodes the config without validating, so
// commands can apply flag overrides or partial checks first.
func parseConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return config.Parse(data)
}

// =============================================================================
// Run Command Handler
// =============================================================================

// runRun implements the run command: wire all collaborators, replay the
// dataset, print the summary.
func runRun(ctx context.Context, configPath, datasetName string, workers int, debug bool) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	if datasetName != "" {
		cfg.Run.DatasetName = datasetName
	}
	if workers > 0 {
		cfg.Run.Workers = workers
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	tracer, shutdownTracer, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Trace.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Trace.Environment,
		Endpoint:       cfg.Trace.Endpoint,
		EnableInsecure: cfg.Trace.Insecure,
	})
	if err != nil {
		return fmt.Errorf("trace sink unavailable: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(context.Background(), "tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Warn(ctx, "metrics listener stopped", "error", err)
			}
		}()
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}

	// Graceful interruption: first signal cancels item processing, the
	// run still finalizes and flushes what was recorded.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lock, err := acquireIndexLock(ctx, cfg.Index.Path+".lock", logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn(context.Background(), "index lock release failed", "error", err)
		}
	}()

	idx, err := index.Open(cfg.Index, client)
	if err != nil {
		return err
	}
	defer idx.Close()

	store, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	pipe, err := pipeline.New(idx, client, pipeline.Options{
		Model:           cfg.LLM.Model,
		K:               cfg.Run.K,
		Temperature:     cfg.LLM.Temperature,
		ReasoningEffort: cfg.LLM.ReasoningEffort,
	})
	if err != nil {
		return err
	}

	judge, err := scoring.NewJudge(client, cfg.JudgeModel())
	if err != nil {
		return err
	}
	judge.SetTimeout(cfg.LLM.Timeout)

	rec, err := recorder.New(recorder.Config{
		ResultsDir:   cfg.Run.ResultsDir,
		RecoveryPath: cfg.Trace.RecoveryPath,
	}, tracer, logger, metrics)
	if err != nil {
		return err
	}

	runner, err := harness.NewRunner(store, pipe, judge, rec, logger, metrics, harness.Options{
		NamePrefix:  cfg.Run.NamePrefix,
		Description: cfg.Run.Description,
		Workers:     cfg.Run.Workers,
		ItemTimeout: cfg.Run.ItemTimeout,
		Snapshot:    cfg.Snapshot(),
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx, cfg.Run.DatasetName)
	if summary.RunName != "" {
		fmt.Printf("Run: %s\n", summary.RunName)
		fmt.Printf("Items: %d total, %d scored, %d partial\n",
			summary.Total, summary.Scored, summary.Partial)
		fmt.Printf("Evaluation time: %.2f seconds\n", summary.Elapsed.Seconds())
	}
	return err
}

// acquireIndexLock takes the exclusive index lock, retrying once on
// contention before giving up.
func acquireIndexLock(ctx context.Context, path string, logger *observability.Logger) (*index.Lock, error) {
	var lock *index.Lock
	err := backoff.Retry(ctx, backoff.DefaultPolicy(), 2, func(attempt int) error {
		l, stale, err := index.AcquireLock(path)
		if stale != "" {
			logger.Warn(ctx, "cleared stale index lock", "holder", stale)
		}
		if err != nil {
			if attempt == 1 && errors.Is(err, index.ErrLocked) {
				logger.Warn(ctx, "index locked, retrying", "error", err)
			}
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index unavailable: %w", err)
	}
	return lock, nil
}

// =============================================================================
// Dataset Command Handlers
// =============================================================================

func runDatasetCreate(ctx context.Context, configPath, name, description string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	store, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Create(ctx, name, description, nil); err != nil {
		return err
	}
	fmt.Printf("Created dataset %q\n", name)
	return nil
}

func runDatasetPopulate(ctx context.Context, configPath, name, filePath string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	items, err := dataset.LoadItems(filePath)
	if err != nil {
		return err
	}
	store, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Populate(ctx, name, items); err != nil {
		return err
	}
	fmt.Printf("Added %d items to dataset %q\n", len(items), name)
	return nil
}

func runDatasetList(ctx context.Context, configPath string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	store, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No datasets")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-30s %5d items  created %s\n",
			info.Name, info.Items, info.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

// =============================================================================
// Index Command Handlers
// =============================================================================

func runIndexBuild(ctx context.Context, configPath, docsPath string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	docs, err := index.LoadDocuments(docsPath)
	if err != nil {
		return err
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lock, err := acquireIndexLock(ctx, cfg.Index.Path+".lock", logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	idx, err := index.Open(cfg.Index, client)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Add(ctx, docs); err != nil {
		return err
	}
	total, err := idx.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d documents (%d total)\n", len(docs), total)
	return nil
}

// =============================================================================
// Check Command Handler
// =============================================================================

// runCheck validates the configuration and reports whether each
// collaborator is usable, without starting a run.
func runCheck(ctx context.Context, configPath string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}
	fmt.Printf("config: ok (%s)\n", configPath)
	fmt.Printf("provider: %s, model: %s, judge: %s\n",
		cfg.LLM.ResolveProvider(), cfg.LLM.Model, cfg.JudgeModel())

	if _, err := llm.NewClient(cfg.LLM); err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	fmt.Println("llm client: ok")

	store, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("dataset store: %w", err)
	}
	defer store.Close()
	infos, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("dataset store: %w", err)
	}
	fmt.Printf("dataset store: ok (%d datasets)\n", len(infos))

	if _, err := os.Stat(cfg.Index.Path); err != nil {
		fmt.Printf("index: missing at %s (run 'ragmark index build')\n", cfg.Index.Path)
	} else {
		fmt.Printf("index: ok (%s)\n", cfg.Index.Path)
	}

	if cfg.Trace.Endpoint == "" {
		fmt.Println("trace sink: disabled (no endpoint configured)")
	} else {
		fmt.Printf("trace sink: %s\n", cfg.Trace.Endpoint)
	}
	return nil
}
