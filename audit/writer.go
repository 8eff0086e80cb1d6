package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// WriterSink writes one JSON object per line.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriterSink writes records to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// OpenFile appends records to path, creating it (and its directory) if needed.
// An empty path writes to stdout.
func OpenFile(path string) (*WriterSink, error) {
	if path == "" {
		return NewWriterSink(os.Stdout), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("audit: create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &WriterSink{w: f, closer: f}, nil
}

// Write encodes r as one line.
func (s *WriterSink) Write(_ context.Context, r Record) error {
	r.normalize()
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if OpenFile created one.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
