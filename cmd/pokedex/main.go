package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-parts/pokeapi"
)

func main() {
	baseURL := flag.String("base-url", pokeapi.DefaultBaseURL, "PokéAPI host")
	limit := flag.Int("limit", 10, "Number of pokémon to list")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	asTable := flag.Bool("table", false, "Render the listing as a table")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := pokeapi.NewClient(*baseURL, *timeout).BaseExperiences(ctx, *limit)
	if err != nil {
		slog.Error("listing pokémon failed", slog.Any("error", err))
		os.Exit(1)
	}

	if !*asTable {
		for _, e := range entries {
			fmt.Println(e.String())
		}
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Name", "Base Experience"})
	for i, e := range entries {
		t.AppendRow(table.Row{i + 1, e.Name, e.BaseExperience})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
