package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// CSVLayout selects the CSV columns.
type CSVLayout string

const (
	// LayoutMinimal writes product_name and sku.
	LayoutMinimal CSVLayout = "minimal"
	// LayoutDetailed writes title, price, sku, availability and url.
	LayoutDetailed CSVLayout = "detailed"
)

func (l CSVLayout) header() []string {
	if l == LayoutMinimal {
		return []string{"product_name", "sku"}
	}
	return []string{"title", "price", "sku", "availability", "url"}
}

func (l CSVLayout) record(p *models.Product) []string {
	if l == LayoutMinimal {
		return []string{p.Name, p.SKU}
	}
	return []string{p.Name, p.Price, p.SKU, p.Availability.String(), p.URL}
}

// CSVWriter writes records to CSV. The file is created on the first Write,
// so a run that fails before producing output leaves nothing behind.
type CSVWriter struct {
	filename string
	layout   CSVLayout

	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter prepares a CSV writer for filename.
func NewCSVWriter(filename string, layout CSVLayout) (*CSVWriter, error) {
	switch layout {
	case "":
		layout = LayoutDetailed
	case LayoutMinimal, LayoutDetailed:
	default:
		return nil, fmt.Errorf("unsupported csv layout %q", layout)
	}
	if filename == "" {
		return nil, fmt.Errorf("csv output file is empty")
	}
	return &CSVWriter{filename: filename, layout: layout}, nil
}

// open creates the file and writes the header row.
func (cw *CSVWriter) open() error {
	if cw.file != nil {
		return nil
	}
	if err := ensureDir(cw.filename); err != nil {
		return err
	}

	f, err := os.Create(cw.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(cw.layout.header()); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	cw.file = f
	cw.writer = writer
	return nil
}

// Write appends products to the CSV output. An empty slice still creates
// the file with its header.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.open(); err != nil {
		return err
	}
	for _, product := range products {
		if err := cw.writer.Write(cw.layout.record(product)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle, if one was opened.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.file == nil {
		return nil
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	err := cw.file.Close()
	cw.file = nil
	return err
}

// Validate ensures the file exists and has content.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.filename, "csv")
}

// JSONWriter writes newline-delimited JSON records. Like CSVWriter, the
// file is created on the first Write.
type JSONWriter struct {
	filename string

	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter prepares the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("json output file is empty")
	}
	return &JSONWriter{filename: filename}, nil
}

func (jw *JSONWriter) open() error {
	if jw.file != nil {
		return nil
	}
	if err := ensureDir(jw.filename); err != nil {
		return err
	}

	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}

	jw.file = f
	jw.writer = bufio.NewWriter(f)
	jw.encoder = json.NewEncoder(jw.writer)
	return nil
}

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.open(); err != nil {
		return err
	}
	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		return nil
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	err := jw.file.Close()
	jw.file = nil
	return err
}

// Validate ensures the JSON file was created. An empty run legitimately
// produces an empty JSONL file.
func (jw *JSONWriter) Validate() error {
	if _, err := os.Stat(jw.filename); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

func validateFile(filename, kind string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
