package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/pipeline"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.toml")
	file := "parallelism = 3\nstable_rounds = 5\nmax_rounds = 30\n"
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SCRAPER_PARALLEL", "7")
	t.Setenv("SCRAPER_MAX_ROUNDS", "20")

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := config.DefaultConfig()
	configPath := registerFlags(fs, flags)
	if err := fs.Parse([]string{"-config", path, "-max-rounds", "12", "-format", "TABLE"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(*configPath, fs, flags)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	defaults := config.DefaultConfig()
	if cfg.MaxRounds != 12 {
		t.Errorf("max rounds = %d, want flag value 12", cfg.MaxRounds)
	}
	if cfg.Parallelism != 7 {
		t.Errorf("parallelism = %d, want env value 7", cfg.Parallelism)
	}
	if cfg.StableRounds != 5 {
		t.Errorf("stable rounds = %d, want file value 5", cfg.StableRounds)
	}
	if cfg.Signal != defaults.Signal {
		t.Errorf("signal = %q, want default %q", cfg.Signal, defaults.Signal)
	}
	if cfg.OutputFormat != "table" {
		t.Errorf("format = %q, want table", cfg.OutputFormat)
	}
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("SCRAPER_MAX_ROUNDS", "many")

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	flags := config.DefaultConfig()
	registerFlags(fs, flags)

	if _, err := loadConfig("", fs, flags); err == nil {
		t.Fatal("expected error for non-numeric SCRAPER_MAX_ROUNDS")
	}
}

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		check  func(w pipeline.OutputWriter) bool
	}{
		{format: "csv", check: func(w pipeline.OutputWriter) bool { _, ok := w.(*pipeline.CSVWriter); return ok }},
		{format: "json", check: func(w pipeline.OutputWriter) bool { _, ok := w.(*pipeline.JSONWriter); return ok }},
		{format: "table", check: func(w pipeline.OutputWriter) bool { _, ok := w.(*pipeline.TableWriter); return ok }},
		{format: "dual", check: sinksAre("csv", "json")},
		{format: "csv,table", check: sinksAre("csv", "table")},
		{format: "table, dual, csv", check: sinksAre("table", "csv", "json")},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = filepath.Join(dir, "parts.csv")

			w, err := createWriter(cfg)
			if err != nil {
				t.Fatalf("create writer: %v", err)
			}
			if !tt.check(w) {
				t.Fatalf("unexpected writer %T %+v", w, w)
			}
		})
	}

	for _, format := range []string{"xml", "csv,", "csv,xml"} {
		cfg := config.DefaultConfig()
		cfg.OutputFormat = format
		if _, err := createWriter(cfg); err == nil {
			t.Fatalf("expected error for format %q", format)
		}
	}
}

func sinksAre(names ...string) func(pipeline.OutputWriter) bool {
	return func(w pipeline.OutputWriter) bool {
		fw, ok := w.(*pipeline.FanoutWriter)
		return ok && cmp.Equal(names, fw.Sinks())
	}
}

func TestOutputTargets(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "csv", want: "out/parts.csv"},
		{format: "json", want: "out/parts.csv"},
		{format: "dual", want: "out/parts.csv, out/parts.jsonl"},
		{format: "csv,table", want: "out/parts.csv, stdout"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = "out/parts.csv"
			if got := outputTargets(cfg); got != tt.want {
				t.Errorf("outputTargets() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogOutputAvoidsTableStream(t *testing.T) {
	cfg := config.DefaultConfig()
	if logOutput(cfg) != os.Stdout {
		t.Error("csv runs should log to stdout")
	}
	cfg.OutputFormat = "csv,table"
	if logOutput(cfg) != os.Stderr {
		t.Error("table runs should log to stderr")
	}
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[string]int{"no_canonical_link": 1, "duplicate": 2})
	if want := "duplicate=2 no_canonical_link=1"; got != want {
		t.Fatalf("formatCounts = %q, want %q", got, want)
	}
}
