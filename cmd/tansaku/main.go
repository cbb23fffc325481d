// Package main is the tansaku CLI entry point: a small host around the
// search core for running a vault watcher and querying from the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hoshizora/tansaku/internal/config"
	"github.com/hoshizora/tansaku/internal/models"
	"github.com/hoshizora/tansaku/internal/service"
	"github.com/hoshizora/tansaku/internal/vault"
	"github.com/hoshizora/tansaku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tansaku/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "watch":
		runWatch()
	case "search":
		runSearch()
	case "stats":
		runStats()
	case "rebuild":
		runRebuild()
	case "version", "--version", "-v":
		fmt.Printf("tansaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tansaku - incremental full-text search for a notes vault

Usage:
  tansaku watch   [--config PATH] [--debug]          watch the vault and serve interactive queries
  tansaku search  [--config PATH] [--limit N] QUERY  one-shot query
  tansaku stats   [--config PATH]                    index and storage statistics
  tansaku rebuild [--config PATH]                    drop the index and reindex the vault
  tansaku version                                    print version`)
}

// setup loads config, builds the vault adapter and the search service, and
// initializes it. Callers own svc.Close.
func setup(configPath string, debugFlag bool) (*config.Config, *vault.FSVault, *service.Service, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved))

	fv, err := vault.NewFSVault(cfg.Vault.Root, cfg.Vault.Extensions, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open vault: %w", err)
	}
	svc := service.New(cfg, fv, fv.Resolve, service.WithLogger(logger))
	if err := svc.Initialize(context.Background()); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initialize service: %w", err)
	}
	return cfg, fv, svc, logger, nil
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	_, fv, svc, logger, err := setup(*configPath, *debug)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	defer svc.Close()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := vault.NewWatcher(fv, svc, logger)
	if err := w.Start(ctx); err != nil {
		fmt.Printf("Failed to start watcher: %v\n", err)
		os.Exit(1)
	}
	defer w.Stop()

	fmt.Printf("Watching %s. Type a query, or :q to quit.\n", fv.Root())
	go repl(ctx, svc, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	fmt.Println("Shutting down...")
}

// repl reads queries from stdin until :q or EOF.
func repl(ctx context.Context, svc *service.Service, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ":q" || line == ":quit" {
			cancel()
			return
		}
		results, err := svc.Search(ctx, line, 0)
		if err != nil {
			fmt.Printf("search: %v\n", err)
			continue
		}
		printResults(results, line)
	}
	cancel()
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "max results (0 = default)")
	_ = fs.Parse(os.Args[2:])
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Println("search: query required")
		os.Exit(1)
	}

	_, _, svc, logger, err := setup(*configPath, false)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	defer svc.Close()
	defer logger.Sync()

	// Give background indexing a moment on a cold cache.
	waitForProgress(svc, 10*time.Second)

	results, err := svc.Search(context.Background(), query, *limit)
	if err != nil {
		fmt.Printf("search: %v\n", err)
		os.Exit(1)
	}
	printResults(results, query)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, _, svc, logger, err := setup(*configPath, false)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	defer svc.Close()
	defer logger.Sync()

	waitForProgress(svc, 10*time.Second)

	stats, err := svc.GetSearchStats(context.Background())
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Documents:  %d\n", stats.Index.DocumentCount)
	fmt.Printf("Index size: ~%d bytes\n", stats.Index.IndexSize)
	fmt.Printf("Backend:    %s (%d keys, %d bytes on disk)\n",
		stats.Storage.Backend, stats.Storage.Keys, stats.Storage.DiskBytes)
	if len(stats.RecentQueries) > 0 {
		fmt.Printf("Recent queries: %s\n", strings.Join(stats.RecentQueries, ", "))
	}
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, _, svc, logger, err := setup(*configPath, false)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	defer svc.Close()
	defer logger.Sync()

	start := time.Now()
	if err := svc.RebuildIndex(context.Background()); err != nil {
		fmt.Printf("rebuild: %v\n", err)
		os.Exit(1)
	}
	progress := svc.GetIndexingProgress()
	fmt.Printf("Rebuilt %d documents in %s (%d errors)\n",
		progress.Processed, time.Since(start).Round(time.Millisecond), progress.Errors)
}

// waitForProgress polls until background indexing settles or the timeout
// elapses. One-shot commands need the index populated before querying.
func waitForProgress(svc *service.Service, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p := svc.GetIndexingProgress()
		if p.Total > 0 && p.Processed+p.Skipped+p.Errors >= p.Total {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func printResults(results []*models.RankedResult, query string) {
	if len(results) == 0 {
		fmt.Printf("No results for %q\n", query)
		return
	}
	for _, r := range results {
		fmt.Printf("%2d. %-50s %.4f\n", r.Rank, r.ID, r.CombinedScore)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
}
