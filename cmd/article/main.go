package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-scrape-parts/article"
)

func main() {
	opts := article.DefaultOptions()
	pageURL := flag.String("url", "https://www.geeksforgeeks.org/python/python-programming-language-tutorial/", "Article URL")
	flag.StringVar(&opts.ContentSelector, "selector", opts.ContentSelector, "Content container selector")
	flag.IntVar(&opts.MaxRetries, "max-retries", opts.MaxRetries, "Maximum retry attempts")
	flag.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Request timeout")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	art, err := article.NewFetcher(opts).Fetch(ctx, *pageURL)
	if err != nil {
		slog.Error("fetching article failed",
			slog.String("url", *pageURL),
			slog.String("category", article.ErrorType(err)),
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	for _, line := range art.Lines() {
		fmt.Println(line)
	}
}
