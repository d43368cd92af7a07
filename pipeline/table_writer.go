package pipeline

import (
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// TableWriter renders products as a terminal table. Rows are buffered and
// rendered once on Close.
type TableWriter struct {
	out      io.Writer
	rows     []table.Row
	rendered bool
	mu       sync.Mutex
}

// NewTableWriter returns a writer that renders to out.
func NewTableWriter(out io.Writer) *TableWriter {
	return &TableWriter{out: out}
}

// Write buffers products.
func (tw *TableWriter) Write(products []*models.Product) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	for _, p := range products {
		tw.rows = append(tw.rows, table.Row{len(tw.rows) + 1, p.Name, p.Price, p.SKU, p.Availability.String()})
	}
	return nil
}

// Close renders the table.
func (tw *TableWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.rendered {
		return nil
	}
	tw.rendered = true

	t := table.NewWriter()
	t.SetOutputMirror(tw.out)
	t.AppendHeader(table.Row{"#", "Name", "Price", "SKU", "Availability"})
	t.AppendRows(tw.rows)
	t.AppendFooter(table.Row{"", "Total", "", "", len(tw.rows)})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

// Validate is a no-op; a table has no file to check.
func (tw *TableWriter) Validate() error {
	return nil
}
