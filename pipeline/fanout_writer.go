package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// Sink is one named destination of a FanoutWriter.
type Sink struct {
	Name   string
	Writer OutputWriter
}

// FanoutWriter sends every batch to several writers, e.g. a CSV file and
// the terminal table. A failing sink does not stop the others; its error is
// reported under its name.
type FanoutWriter struct {
	sinks []Sink
}

// NewFanoutWriter returns a writer over sinks, used in the given order.
func NewFanoutWriter(sinks ...Sink) *FanoutWriter {
	return &FanoutWriter{sinks: sinks}
}

// Sinks returns the names of the destinations.
func (fw *FanoutWriter) Sinks() []string {
	names := make([]string, 0, len(fw.sinks))
	for _, s := range fw.sinks {
		names = append(names, s.Name)
	}
	return names
}

func (fw *FanoutWriter) Write(products []*models.Product) error {
	return fw.each("write", func(w OutputWriter) error { return w.Write(products) })
}

func (fw *FanoutWriter) Close() error {
	return fw.each("close", OutputWriter.Close)
}

func (fw *FanoutWriter) Validate() error {
	return fw.each("validate", OutputWriter.Validate)
}

func (fw *FanoutWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, s := range fw.sinks {
		if err := fn(s.Writer); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, s.Name, err))
		}
	}
	return errors.Join(errs...)
}
