package archive

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion that MemArchiver satisfies the Archiver interface.
var _ Archiver = (*MemArchiver)(nil)

// MemArchiver is a thread-safe, in-memory implementation of [Archiver].
// It is suitable for single-process use and testing.
type MemArchiver struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemArchiver returns an initialised [MemArchiver].
func NewMemArchiver() *MemArchiver {
	return &MemArchiver{
		records: make(map[string]Record),
	}
}

// Save implements [Archiver.Save]. The record is deep-copied so later caller
// mutations do not leak into the store.
func (a *MemArchiver) Save(_ context.Context, rec *Record) error {
	cp := copyRecord(rec)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.records == nil {
		a.records = make(map[string]Record)
	}
	a.records[cp.SessionID] = cp
	return nil
}

// Get implements [Archiver.Get].
func (a *MemArchiver) Get(_ context.Context, sessionID string) (*Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[sessionID]
	if !ok {
		return nil, nil
	}
	out := copyRecord(&rec)
	return &out, nil
}

// List implements [Archiver.List].
func (a *MemArchiver) List(_ context.Context, limit int) ([]Record, error) {
	a.mu.RLock()
	out := make([]Record, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, copyRecord(&rec))
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(rec *Record) Record {
	cp := *rec
	cp.Entries = make([]Entry, len(rec.Entries))
	copy(cp.Entries, rec.Entries)
	for i := range cp.Entries {
		if rec.Entries[i].Metadata != nil {
			meta := make(map[string]string, len(rec.Entries[i].Metadata))
			for k, v := range rec.Entries[i].Metadata {
				meta[k] = v
			}
			cp.Entries[i].Metadata = meta
		}
	}
	return cp
}
