package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/loratk/internal/config"
	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/storage"
)

var version = "dev"

var noColor bool

// loadConfig is swapped out in tests.
var loadConfig = config.Load

var rootCmd = &cobra.Command{
	Use:   "loratk",
	Short: "Collect, score, deduplicate and export text for LoRA fine-tuning",
	Long: `loratk keeps a local library of text entries and turns it into
JSONL datasets for fine-tuning (alpaca, sharegpt, completion, chatml, raw).

Examples:
  loratk add --title "Anti-cheat basics" --file notes.md --tags security
  loratk score --all
  loratk dedup
  loratk export --format sharegpt --min-score 60`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(addCmd, importCmd, listCmd, showCmd, editCmd, deleteCmd)
	rootCmd.AddCommand(scoreCmd, dedupCmd, categoriesCmd, tagsCmd)
	rootCmd.AddCommand(exportCmd, formatsCmd, reportCmd, historyCmd, statsCmd)
	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
}

// library bundles what most commands work against.
type library struct {
	cfg     config.Config
	store   *storage.Store
	checker *dedup.Checker
}

func openLibrary() (*library, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &library{
		cfg:     cfg,
		store:   store,
		checker: dedup.NewChecker(cfg.Dedup.TitleThreshold, cfg.Dedup.ContentThreshold),
	}, nil
}

func (l *library) collector() *ingest.Collector {
	return ingest.NewCollector(l.store, l.checker, l.cfg.Ingest.SkipDuplicates)
}

func (l *library) Close() {
	if err := l.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
