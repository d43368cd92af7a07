// Package pipeline collects harvested products and writes them out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/harvester"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when Close gives up waiting for the final write.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers and the writer.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Pipeline validates and de-duplicates records as they arrive, then sorts
// them and hands them to the writer once, on Close.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	productCh chan *models.Product
	batchSize int

	dedupeBySKU    bool
	outOfStockOnly bool

	wg sync.WaitGroup

	// seenIDs and seenSKUs are only touched from Process, which callers
	// invoke sequentially, so first-seen order is the submission order.
	seenIDs  *lru.Cache[string, struct{}]
	seenSKUs *lru.Cache[string, struct{}]

	collected   []*models.Product
	collectedMu sync.Mutex

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	flushOnce    sync.Once
	flushDone    chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}
	maxSeen := cfg.DedupeMaxSize
	if maxSeen <= 0 {
		maxSeen = 100_000
	}

	// lru.New only fails for a non-positive size.
	seenIDs, _ := lru.New[string, struct{}](maxSeen)
	seenSKUs, _ := lru.New[string, struct{}](maxSeen)

	return &Pipeline{
		ctx:            ctx,
		writer:         writer,
		productCh:      make(chan *models.Product, bufferSize),
		batchSize:      batchSize,
		dedupeBySKU:    cfg.DedupeBySKU,
		outOfStockOnly: cfg.OutOfStockOnly,
		seenIDs:        seenIDs,
		seenSKUs:       seenSKUs,
		metrics:        newMetrics(),
		flushDone:      make(chan struct{}),
		shutdown:       make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process validates, de-duplicates and enqueues products. Calls must not
// overlap; the first product submitted for a key wins.
func (p *Pipeline) Process(products ...*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if product == nil {
			continue
		}
		if !p.admit(product) {
			continue
		}
		if err := p.enqueue(product); err != nil {
			return err
		}
	}
	return nil
}

// Close stops intake, waits for workers, and writes the sorted records.
// It returns ErrPipelineCloseTimeout when that takes longer than the drain
// timeout.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.productCh)
	})

	p.flushOnce.Do(func() {
		go func() {
			defer close(p.flushDone)
			p.wg.Wait()
			if err := p.flush(); err != nil {
				p.setErr(err)
			}
		}()
	})

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-p.flushDone:
		return p.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_products"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("duplicates", validation["duplicate_identifier"]+validation["duplicate_sku"]),
					slog.Int("invalid", validation["invalid_record"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for product := range p.productCh {
		prepared := p.prepare(product)

		p.collectedMu.Lock()
		p.collected = append(p.collected, prepared)
		p.collectedMu.Unlock()
	}
}

// admit validates product and records its keys. It reports whether the
// product should continue down the pipeline.
func (p *Pipeline) admit(product *models.Product) bool {
	if err := parser.ValidateProduct(product); err != nil {
		slog.Debug("dropping invalid record", slog.Any("error", err))
		p.metrics.addValidation("invalid_record")
		return false
	}

	if p.seenIDs.Contains(product.Identifier) {
		p.metrics.addValidation("duplicate_identifier")
		return false
	}
	if p.dedupeBySKU && product.SKU != "" {
		if p.seenSKUs.Contains(product.SKU) {
			p.metrics.addValidation("duplicate_sku")
			return false
		}
		p.seenSKUs.Add(product.SKU, struct{}{})
	}
	p.seenIDs.Add(product.Identifier, struct{}{})
	return true
}

func (p *Pipeline) prepare(product *models.Product) *models.Product {
	out := *product
	out.Name = parser.NormalizeSpace(out.Name)
	out.Price = parser.NormalizeSpace(out.Price)
	out.SKU = parser.NormalizeSpace(out.SKU)

	p.metrics.incrementProcessed()
	return &out
}

// flush sorts the collected records and writes them in batches.
func (p *Pipeline) flush() error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: not writing output: %w", err)
	}

	p.collectedMu.Lock()
	records := make([]models.Product, 0, len(p.collected))
	for _, product := range p.collected {
		if p.outOfStockOnly && product.Availability != models.OutOfStock {
			p.metrics.addFiltered()
			continue
		}
		records = append(records, *product)
	}
	p.collectedMu.Unlock()

	harvester.Sort(records)

	var outOfStock int64
	for i := range records {
		if records[i].Availability == models.OutOfStock {
			outOfStock++
		}
	}

	if len(records) == 0 {
		// Still produce the (header-only) output.
		if err := p.writer.Write(nil); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		return nil
	}

	batch := make([]*models.Product, 0, p.batchSize)
	for i := range records {
		batch = append(batch, &records[i])
		if len(batch) >= p.batchSize {
			if err := p.writer.Write(batch); err != nil {
				return fmt.Errorf("write batch: %w", err)
			}
			batch = make([]*models.Product, 0, p.batchSize)
		}
	}
	if len(batch) > 0 {
		if err := p.writer.Write(batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	p.metrics.setWritten(int64(len(records)), outOfStock)
	return nil
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.productCh <- product:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	written    int64
	outOfStock int64
	filtered   int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addFiltered() {
	m.mu.Lock()
	m.filtered++
	m.mu.Unlock()
}

func (m *metrics) setWritten(n, outOfStock int64) {
	m.mu.Lock()
	m.written = n
	m.outOfStock = outOfStock
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products":    m.processed,
		"written_products":      m.written,
		"out_of_stock_products": m.outOfStock,
		"filtered_in_stock":     m.filtered,
		"validation_errors":     copyValidation,
	}
}
