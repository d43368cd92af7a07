package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Product
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Product, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (mw *mockWriter) names() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var names []string
	for _, batch := range mw.batches {
		for _, p := range batch {
			names = append(names, p.Name)
		}
	}
	return names
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(products []*models.Product) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func newProduct(slug, name string) *models.Product {
	return &models.Product{
		Identifier: "/product/" + slug,
		Name:       name,
		URL:        "https://shop.example/product/" + slug,
		ScrapedAt:  time.Now(),
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := newProduct("brake-lever", "Brake Lever")
	invalid := newProduct("grips", "  ")
	duplicate := newProduct("brake-lever", "Brake Lever (copy)")

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written products = %d, want 1", got)
	}
	if got := writer.names(); got[0] != "Brake Lever" {
		t.Fatalf("kept %q, want the first submitted record", got[0])
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_identifier"] == 0 {
		t.Fatalf("expected duplicate_identifier validation error")
	}
}

func TestPipelineDedupeBySKU(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeBySKU = true
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	first := newProduct("hub", "Front Hub")
	first.SKU = "HUB-1"
	second := newProduct("hub-old", "Front Hub Old")
	second.SKU = "HUB-1"
	noSKU := newProduct("grips", "Grips")
	alsoNoSKU := newProduct("pedals", "Pedals")

	if err := p.Process(first, second, noSKU, alsoNoSKU); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"Front Hub", "Grips", "Pedals"}
	if diff := cmp.Diff(want, writer.names()); diff != "" {
		t.Fatalf("written names mismatch (-want +got):\n%s", diff)
	}
	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["duplicate_sku"] != 1 {
		t.Fatalf("duplicate_sku = %d, want 1", validation["duplicate_sku"])
	}
}

func TestPipelineSortsBeforeWriting(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 2
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(3)

	for _, name := range []string{"charlie", "Alpha", "delta", "bravo", "  echo  "} {
		if err := p.Process(newProduct(name, name)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"Alpha", "bravo", "charlie", "delta", "echo"}
	if diff := cmp.Diff(want, writer.names()); diff != "" {
		t.Fatalf("write order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, writer.batchSizes()); diff != "" {
		t.Fatalf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineOutOfStockOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutOfStockOnly = true
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	in := newProduct("fork", "Fork")
	out := newProduct("chain", "Chain")
	out.Availability = models.OutOfStock

	if err := p.Process(in, out); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if diff := cmp.Diff([]string{"Chain"}, writer.names()); diff != "" {
		t.Fatalf("written names mismatch (-want +got):\n%s", diff)
	}
	if got := p.GetMetrics()["filtered_in_stock"].(int64); got != 1 {
		t.Fatalf("filtered_in_stock = %d, want 1", got)
	}
	if got := p.GetMetrics()["out_of_stock_products"].(int64); got != 1 {
		t.Fatalf("out_of_stock_products = %d, want 1", got)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		product := newProduct("part-"+strconv.Itoa(i), "Part "+strconv.Itoa(i))
		if err := p.Process(product); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		product := newProduct("part-"+strconv.Itoa(i+200), "Part")
		if err := p.Process(product); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written products = %d, want 100", got)
	}
	if got := p.GetMetrics()["written_products"].(int64); got != 100 {
		t.Fatalf("written_products = %d, want 100", got)
	}
}

func TestPipelineEmptyRunStillWrites(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.batchSizes(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("batch sizes = %v, want one empty write", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process(newProduct("late", "Late")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineCanceledRunWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &mockWriter{}
	p := NewPipeline(ctx, writer, config.DefaultConfig())
	p.Start(1)

	if err := p.Process(newProduct("fork", "Fork")); err != nil {
		t.Fatalf("process: %v", err)
	}
	cancel()

	if err := p.Close(); !errors.Is(err, context.Canceled) {
		t.Fatalf("close = %v, want context.Canceled", err)
	}
	if got := writer.batchSizes(); len(got) != 0 {
		t.Fatalf("writer received %d batches after cancellation", len(got))
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(newProduct("blocked", "Blocked Part")); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}
