package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/pipeline"
	"github.com/aluiziolira/go-scrape-parts/scraper"
)

func main() {
	flags := config.DefaultConfig()
	configPath := registerFlags(flag.CommandLine, flags)
	flag.Parse()

	cfg, err := loadConfig(*configPath, flag.CommandLine, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger, level := newLogger(cfg.Verbose, logOutput(cfg))
	slog.SetDefault(logger.With(slog.String("run_id", runID)))
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting harvest",
		slog.String("url", cfg.StartURL),
		slog.String("engine", cfg.Engine),
		slog.Int("max_rounds", cfg.MaxRounds),
		slog.Bool("details", cfg.Details),
	)

	s, err := scraper.NewScraper(cfg, nil)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}
	s.RunID = runID

	writer, err := createWriter(cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, abandoning the run")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, p)
	if err != nil {
		slog.Error("harvest failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	metrics := p.GetMetrics()
	if written, ok := metrics["written_products"].(int64); ok {
		result.TotalCount = int(written)
	}

	printSummary(result, time.Since(startTime), outputTargets(cfg), metrics)
}

// registerFlags binds the command-line flags to cfg and returns the
// -config path.
func registerFlags(fs *flag.FlagSet, cfg *config.Config) *string {
	configPath := fs.String("config", "", "TOML configuration file")
	fs.StringVar(&cfg.StartURL, "url", cfg.StartURL, "Listing URL to harvest")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "Browser engine: chromedp or playwright")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser headless")
	fs.StringVar(&cfg.ExecPath, "exec-path", cfg.ExecPath, "Browser executable (default: discover, install if missing)")
	fs.BoolVar(&cfg.NoSandbox, "no-sandbox", cfg.NoSandbox, "Disable the Chromium sandbox (containers)")
	fs.DurationVar(&cfg.NavigationTimeout, "nav-timeout", cfg.NavigationTimeout, "Page navigation timeout")
	fs.StringVar(&cfg.Signal, "signal", cfg.Signal, "Growth signal: count or height")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", cfg.MaxRounds, "Maximum stabilization rounds")
	fs.IntVar(&cfg.StableRounds, "stable-rounds", cfg.StableRounds, "Quiet rounds required to stop early")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "Pause after a load-more click")
	fs.DurationVar(&cfg.ScrollDelay, "scroll-delay", cfg.ScrollDelay, "Pause after scrolling to the bottom")
	fs.BoolVar(&cfg.Details, "details", cfg.Details, "Visit every product page for title, price and stock")
	fs.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent detail pages")
	fs.BoolVar(&cfg.DedupeBySKU, "dedupe-sku", cfg.DedupeBySKU, "Also drop records whose SKU was already seen")
	fs.BoolVar(&cfg.OutOfStockOnly, "out-of-stock", cfg.OutOfStockOnly, "Only write out-of-stock records")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output formats, comma-separated: csv, json, table (dual = csv,json)")
	fs.StringVar(&cfg.CSVLayout, "layout", cfg.CSVLayout, "CSV columns: minimal or detailed")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	return configPath
}

// loadConfig layers defaults, the optional TOML file, SCRAPER_* variables
// and finally the flags that were set explicitly on the command line.
func loadConfig(path string, fs *flag.FlagSet, flags *config.Config) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(cfg, flags)
		}
	})
	cfg.Engine = strings.ToLower(cfg.Engine)
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.CSVLayout = strings.ToLower(cfg.CSVLayout)
	return cfg, nil
}

var flagSetters = map[string]func(dst, src *config.Config){
	"url":           func(dst, src *config.Config) { dst.StartURL = src.StartURL },
	"engine":        func(dst, src *config.Config) { dst.Engine = src.Engine },
	"headless":      func(dst, src *config.Config) { dst.Headless = src.Headless },
	"exec-path":     func(dst, src *config.Config) { dst.ExecPath = src.ExecPath },
	"no-sandbox":    func(dst, src *config.Config) { dst.NoSandbox = src.NoSandbox },
	"nav-timeout":   func(dst, src *config.Config) { dst.NavigationTimeout = src.NavigationTimeout },
	"signal":        func(dst, src *config.Config) { dst.Signal = src.Signal },
	"max-rounds":    func(dst, src *config.Config) { dst.MaxRounds = src.MaxRounds },
	"stable-rounds": func(dst, src *config.Config) { dst.StableRounds = src.StableRounds },
	"settle-delay":  func(dst, src *config.Config) { dst.SettleDelay = src.SettleDelay },
	"scroll-delay":  func(dst, src *config.Config) { dst.ScrollDelay = src.ScrollDelay },
	"details":       func(dst, src *config.Config) { dst.Details = src.Details },
	"parallel":      func(dst, src *config.Config) { dst.Parallelism = src.Parallelism },
	"dedupe-sku":    func(dst, src *config.Config) { dst.DedupeBySKU = src.DedupeBySKU },
	"out-of-stock":  func(dst, src *config.Config) { dst.OutOfStockOnly = src.OutOfStockOnly },
	"output":        func(dst, src *config.Config) { dst.OutputFile = src.OutputFile },
	"format":        func(dst, src *config.Config) { dst.OutputFormat = src.OutputFormat },
	"layout":        func(dst, src *config.Config) { dst.CSVLayout = src.CSVLayout },
	"metrics-addr":  func(dst, src *config.Config) { dst.MetricsAddr = src.MetricsAddr },
	"v":             func(dst, src *config.Config) { dst.Verbose = src.Verbose },
}

// createWriter builds one writer per requested format. JSON lands next to
// the CSV file as <name>.jsonl when both are requested.
func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	formats, err := config.OutputFormats(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}

	var sinks []pipeline.Sink
	for _, format := range formats {
		var w pipeline.OutputWriter
		switch format {
		case "csv":
			w, err = pipeline.NewCSVWriter(cfg.OutputFile, pipeline.CSVLayout(cfg.CSVLayout))
		case "json":
			w, err = pipeline.NewJSONWriter(jsonPath(cfg, formats))
		case "table":
			w = pipeline.NewTableWriter(os.Stdout)
		}
		if err != nil {
			return nil, fmt.Errorf("%s writer: %w", format, err)
		}
		sinks = append(sinks, pipeline.Sink{Name: format, Writer: w})
	}

	if len(sinks) == 1 {
		return sinks[0].Writer, nil
	}
	return pipeline.NewFanoutWriter(sinks...), nil
}

func jsonPath(cfg *config.Config, formats []string) string {
	if slices.Contains(formats, "csv") {
		return strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".jsonl"
	}
	return cfg.OutputFile
}

// outputTargets names where the run's records went, for the summary.
func outputTargets(cfg *config.Config) string {
	formats, err := config.OutputFormats(cfg.OutputFormat)
	if err != nil {
		return cfg.OutputFile
	}
	var targets []string
	for _, format := range formats {
		switch format {
		case "csv":
			targets = append(targets, cfg.OutputFile)
		case "json":
			targets = append(targets, jsonPath(cfg, formats))
		case "table":
			targets = append(targets, "stdout")
		}
	}
	return strings.Join(targets, ", ")
}

// logOutput keeps stdout for the table when one is rendered there.
func logOutput(cfg *config.Config) *os.File {
	formats, err := config.OutputFormats(cfg.OutputFormat)
	if err == nil && slices.Contains(formats, "table") {
		return os.Stderr
	}
	return os.Stdout
}

func printSummary(result *models.ScraperResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Harvest complete")

	outOfStock := int64(0)
	if n, ok := metrics["out_of_stock_products"].(int64); ok {
		outOfStock = n
	}

	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Rounds:        %d (converged: %t)\n", result.Rounds, result.Converged)
	fmt.Printf("  Load more:     %d clicks\n", result.LoadMoreClicks)
	fmt.Printf("  Candidates:    %d\n", result.Candidates)
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped:       %s\n", formatCounts(result.Skipped))
	}
	fmt.Printf("  Unique items:  %d\n", result.TotalCount)
	fmt.Printf("  Out of stock:  %d\n", outOfStock)
	if result.DetailPages > 0 || len(result.FailedURLs) > 0 {
		fmt.Printf("  Detail pages:  %d ok, %d failed\n", result.DetailPages, len(result.FailedURLs))
	}
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %s\n", formatCounts(result.ErrorsByType))
	}
	for _, u := range result.FailedURLs {
		fmt.Printf("    failed: %s\n", u)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %s\n", formatCounts(valErrors))
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output:        %s\n", outputFile)
	fmt.Println(separator)
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func newLogger(verbose bool, out *os.File) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
