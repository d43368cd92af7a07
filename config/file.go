package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LoadFile overlays the TOML file at path onto c. Keys absent from the file
// keep their current values. Durations are written as strings ("800ms").
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return raw.apply(c)
}

// fileConfig mirrors Config with optional fields so that only keys present
// in the file are applied.
type fileConfig struct {
	StartURL string `toml:"start_url"`

	Engine            string  `toml:"engine"`
	Headless          *bool   `toml:"headless"`
	ExecPath          string  `toml:"exec_path"`
	UserAgent         string  `toml:"user_agent"`
	NoSandbox         *bool   `toml:"no_sandbox"`
	NavigationTimeout string  `toml:"navigation_timeout"`
	ReadySelector     *string `toml:"ready_selector"`
	ReadyTimeout      string  `toml:"ready_timeout"`

	ItemSelector          string   `toml:"item_selector"`
	CanonicalLinkSelector string   `toml:"canonical_link_selector"`
	ProductPathPrefix     string   `toml:"product_path_prefix"`
	TitleSelector         string   `toml:"title_selector"`
	PriceSelector         string   `toml:"price_selector"`
	SKUSelector           string   `toml:"sku_selector"`
	ExcludedIDs           []string `toml:"excluded_ids"`

	Signal         string `toml:"signal"`
	MaxRounds      *int   `toml:"max_rounds"`
	StableRounds   *int   `toml:"stable_rounds"`
	SettleDelay    string `toml:"settle_delay"`
	ScrollDelay    string `toml:"scroll_delay"`
	JiggleOffset   *int   `toml:"jiggle_offset"`
	JiggleDelay    string `toml:"jiggle_delay"`
	ControlTimeout string `toml:"control_timeout"`

	Details        *bool `toml:"details"`
	Parallelism    *int  `toml:"parallelism"`
	DedupeBySKU    *bool `toml:"dedupe_by_sku"`
	OutOfStockOnly *bool `toml:"out_of_stock_only"`

	DedupeMaxSize      *int   `toml:"dedupe_max_size"`
	BatchSize          *int   `toml:"batch_size"`
	PipelineBufferSize *int   `toml:"pipeline_buffer_size"`
	OutputFile         string `toml:"output_file"`
	OutputFormat       string `toml:"output_format"`
	CSVLayout          string `toml:"csv_layout"`
	MetricsAddr        string `toml:"metrics_addr"`
	Verbose            *bool  `toml:"verbose"`
}

func (f *fileConfig) apply(c *Config) error {
	setString(&c.StartURL, f.StartURL)
	setString(&c.Engine, strings.ToLower(f.Engine))
	setBool(&c.Headless, f.Headless)
	setString(&c.ExecPath, f.ExecPath)
	setString(&c.UserAgent, f.UserAgent)
	setBool(&c.NoSandbox, f.NoSandbox)
	if f.ReadySelector != nil {
		c.ReadySelector = *f.ReadySelector
	}

	setString(&c.ItemSelector, f.ItemSelector)
	setString(&c.CanonicalLinkSelector, f.CanonicalLinkSelector)
	setString(&c.ProductPathPrefix, f.ProductPathPrefix)
	setString(&c.TitleSelector, f.TitleSelector)
	setString(&c.PriceSelector, f.PriceSelector)
	setString(&c.SKUSelector, f.SKUSelector)
	if f.ExcludedIDs != nil {
		c.ExcludedIDs = f.ExcludedIDs
	}

	setString(&c.Signal, strings.ToLower(f.Signal))
	setInt(&c.MaxRounds, f.MaxRounds)
	setInt(&c.StableRounds, f.StableRounds)
	setInt(&c.JiggleOffset, f.JiggleOffset)

	setBool(&c.Details, f.Details)
	setInt(&c.Parallelism, f.Parallelism)
	setBool(&c.DedupeBySKU, f.DedupeBySKU)
	setBool(&c.OutOfStockOnly, f.OutOfStockOnly)

	setInt(&c.DedupeMaxSize, f.DedupeMaxSize)
	setInt(&c.BatchSize, f.BatchSize)
	setInt(&c.PipelineBufferSize, f.PipelineBufferSize)
	setString(&c.OutputFile, f.OutputFile)
	setString(&c.OutputFormat, strings.ToLower(f.OutputFormat))
	setString(&c.CSVLayout, strings.ToLower(f.CSVLayout))
	setString(&c.MetricsAddr, f.MetricsAddr)
	setBool(&c.Verbose, f.Verbose)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"navigation_timeout", f.NavigationTimeout, &c.NavigationTimeout},
		{"ready_timeout", f.ReadyTimeout, &c.ReadyTimeout},
		{"settle_delay", f.SettleDelay, &c.SettleDelay},
		{"scroll_delay", f.ScrollDelay, &c.ScrollDelay},
		{"jiggle_delay", f.JiggleDelay, &c.JiggleDelay},
		{"control_timeout", f.ControlTimeout, &c.ControlTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = value
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func setInt(dst *int, value *int) {
	if value != nil {
		*dst = *value
	}
}
