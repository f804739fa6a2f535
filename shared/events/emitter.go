package events

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Writer writes one event per line to an io.Writer (the worker's stdout).
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes ev as a single line. Lines are never interleaved.
func (w *Writer) Emit(_ context.Context, ev Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}

// Multi fans an event out to every emitter, joining their errors.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
