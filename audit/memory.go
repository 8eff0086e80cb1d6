package audit

import (
	"context"
	"sync"
	"time"
)

// MemorySink keeps the most recent records in memory.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
	maxLen  int
}

// NewMemorySink keeps at most maxLen records. maxLen=0 means unbounded.
func NewMemorySink(maxLen int) *MemorySink {
	return &MemorySink{maxLen: maxLen}
}

// Write appends r, dropping the oldest record when full.
func (m *MemorySink) Write(_ context.Context, r Record) error {
	r.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if m.maxLen > 0 && len(m.records) > m.maxLen {
		m.records = m.records[len(m.records)-m.maxLen:]
	}
	return nil
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Tool  string
	Host  string
	OK    *bool
	Since time.Time
	Limit int
}

// Query returns matching records, newest first.
func (m *MemorySink) Query(f Filter) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if f.Tool != "" && r.Tool != f.Tool {
			continue
		}
		if f.Host != "" && r.Host != f.Host {
			continue
		}
		if f.OK != nil && r.OK != *f.OK {
			continue
		}
		if !f.Since.IsZero() && r.Time.Before(f.Since) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Records returns every record, oldest first.
func (m *MemorySink) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// Len returns the number of stored records.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
