// Package sink persists crawl output append-only. Each Append reaches the
// operating system before it returns, so a crash after N appends leaves N
// complete entries behind. Reset starts the output over; runs are never
// merged with earlier output.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
)

// Sink is an append-only destination for values of type T.
type Sink[T any] interface {
	// Reset truncates any previous output and prepares for appends.
	Reset() error
	Append(v T) error
	Close() error
}

// RecordSink persists page records.
type RecordSink = Sink[models.PageRecord]

// URLSink persists discovered URLs.
type URLSink = Sink[string]

// PersistenceError reports a failed write. Losing output silently would
// break the append contract, so callers treat it as fatal.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

var errNotReset = errors.New("sink used before Reset")

// Multi fans every call out to all of its sinks, stopping at the first
// error.
type Multi[T any] []Sink[T]

func (m Multi[T]) Reset() error {
	for _, s := range m {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi[T]) Append(v T) error {
	for _, s := range m {
		if err := s.Append(v); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the joined errors.
func (m Multi[T]) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard[T any] struct{}

func (Discard[T]) Reset() error   { return nil }
func (Discard[T]) Append(T) error { return nil }
func (Discard[T]) Close() error   { return nil }

// Memory keeps appended values in memory until the next Reset.
type Memory[T any] struct {
	mu    sync.Mutex
	items []T
}

func (m *Memory[T]) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	return nil
}

func (m *Memory[T]) Append(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, v)
	return nil
}

func (m *Memory[T]) Close() error { return nil }

// Items returns a copy of the values appended since the last Reset.
func (m *Memory[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

// file is an unbuffered output file shared by the line-oriented sinks.
type file struct {
	path string
	f    *os.File
}

func (o *file) reset() error {
	if o.f != nil {
		o.f.Close()
		o.f = nil
	}
	if dir := filepath.Dir(o.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &PersistenceError{Path: o.path, Op: "reset", Err: err}
		}
	}
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return &PersistenceError{Path: o.path, Op: "reset", Err: err}
	}
	o.f = f
	return nil
}

func (o *file) write(p []byte) error {
	if o.f == nil {
		return &PersistenceError{Path: o.path, Op: "append", Err: errNotReset}
	}
	if _, err := o.f.Write(p); err != nil {
		return &PersistenceError{Path: o.path, Op: "append", Err: err}
	}
	return nil
}

func (o *file) close() error {
	if o.f == nil {
		return nil
	}
	f := o.f
	o.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return &PersistenceError{Path: o.path, Op: "close", Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Path: o.path, Op: "close", Err: err}
	}
	return nil
}
