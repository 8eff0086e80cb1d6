// Package audit records one entry per broker invocation.
//
// Records are written synchronously, before the broker returns to its caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one audit entry.
type Record struct {
	ID         string         `json:"id"`
	Time       time.Time      `json:"ts"`
	Tool       string         `json:"tool"`
	OK         bool           `json:"ok"`
	DurationMS float64        `json:"duration_ms"`
	Principal  string         `json:"principal,omitempty"`
	Role       string         `json:"role,omitempty"`
	Host       string         `json:"host,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
}

// normalize fills in the ID and timestamp.
func (r *Record) normalize() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
}

// Sink receives audit records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r Record) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, r Record) error { return f(ctx, r) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) error { return nil })

// Multi fans a record out to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, r Record) error {
		r.normalize()
		var first error
		for _, s := range sinks {
			if err := s.Write(ctx, r); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
