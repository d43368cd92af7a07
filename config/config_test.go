package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max rounds",
			mutate: func(cfg *Config) {
				cfg.MaxRounds = 0
			},
			wantErr: "max rounds",
		},
		{
			name: "stable rounds not below cap",
			mutate: func(cfg *Config) {
				cfg.MaxRounds = 3
				cfg.StableRounds = 3
			},
			wantErr: "stable rounds",
		},
		{
			name: "empty start url",
			mutate: func(cfg *Config) {
				cfg.StartURL = ""
			},
			wantErr: "start URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.StartURL = "http://"
			},
			wantErr: "start URL",
		},
		{
			name: "unknown engine",
			mutate: func(cfg *Config) {
				cfg.Engine = "selenium"
			},
			wantErr: "engine",
		},
		{
			name: "unknown signal",
			mutate: func(cfg *Config) {
				cfg.Signal = "width"
			},
			wantErr: "signal",
		},
		{
			name: "relative product prefix",
			mutate: func(cfg *Config) {
				cfg.ProductPathPrefix = "product/"
			},
			wantErr: "product path prefix",
		},
		{
			name: "negative settle delay",
			mutate: func(cfg *Config) {
				cfg.SettleDelay = -1 * time.Millisecond
			},
			wantErr: "delays",
		},
		{
			name: "unsupported format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "unsupported layout",
			mutate: func(cfg *Config) {
				cfg.CSVLayout = "wide"
			},
			wantErr: "csv layout",
		},
		{
			name: "empty output file",
			mutate: func(cfg *Config) {
				cfg.OutputFile = ""
			},
			wantErr: "output file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestTableFormatNeedsNoFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputFormat = "table"
	cfg.OutputFile = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("table output should not need a file, got %v", err)
	}
}

func TestTableWithFileFormatNeedsFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputFormat = "csv,table"
	cfg.OutputFile = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "output file") {
		t.Fatalf("expected output file error, got %v", err)
	}
}

func TestOutputFormats(t *testing.T) {
	tests := []struct {
		spec    string
		want    []string
		wantErr bool
	}{
		{spec: "csv", want: []string{"csv"}},
		{spec: "dual", want: []string{"csv", "json"}},
		{spec: " Table , CSV ", want: []string{"table", "csv"}},
		{spec: "csv,dual,json", want: []string{"csv", "json"}},
		{spec: "xml", wantErr: true},
		{spec: "", wantErr: true},
		{spec: "csv,,json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := OutputFormats(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("OutputFormats(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_START_URL", "https://shop.example/collection/all")
	t.Setenv("SCRAPER_MAX_ROUNDS", "12")
	t.Setenv("SCRAPER_DETAILS", "true")
	t.Setenv("SCRAPER_SETTLE_DELAY", "150ms")
	t.Setenv("SCRAPER_ENGINE", "Playwright")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.StartURL != "https://shop.example/collection/all" {
		t.Fatalf("start url = %q", cfg.StartURL)
	}
	if cfg.MaxRounds != 12 {
		t.Fatalf("max rounds = %d, want 12", cfg.MaxRounds)
	}
	if !cfg.Details {
		t.Fatalf("details should be enabled")
	}
	if cfg.SettleDelay != 150*time.Millisecond {
		t.Fatalf("settle delay = %v, want 150ms", cfg.SettleDelay)
	}
	if cfg.Engine != "playwright" {
		t.Fatalf("engine = %q, want playwright", cfg.Engine)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("SCRAPER_PARALLEL", "many")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "SCRAPER_PARALLEL") {
		t.Fatalf("expected SCRAPER_PARALLEL error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.toml")
	content := `
start_url = "https://shop.example/collection/parts"
signal = "height"
max_rounds = 20
settle_delay = "300ms"
dedupe_by_sku = true
excluded_ids = ["search", "promo"]
ready_selector = ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Signal != "height" || cfg.MaxRounds != 20 {
		t.Fatalf("signal/max rounds = %q/%d", cfg.Signal, cfg.MaxRounds)
	}
	if cfg.SettleDelay != 300*time.Millisecond {
		t.Fatalf("settle delay = %v", cfg.SettleDelay)
	}
	if !cfg.DedupeBySKU {
		t.Fatalf("dedupe by sku should be enabled")
	}
	if len(cfg.ExcludedIDs) != 2 || cfg.ExcludedIDs[1] != "promo" {
		t.Fatalf("excluded ids = %v", cfg.ExcludedIDs)
	}
	if cfg.ReadySelector != "" {
		t.Fatalf("ready selector should be cleared, got %q", cfg.ReadySelector)
	}
	if cfg.StableRounds != 3 {
		t.Fatalf("stable rounds default lost: %d", cfg.StableRounds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.toml")
	if err := os.WriteFile(path, []byte("max_round = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err == nil || !strings.Contains(err.Error(), "max_round") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
