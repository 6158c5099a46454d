// Package store keeps recent pipeline run reports for later inspection.
//
// DESIGN: Reports are written once per run and read by run id from the
// gateway (GET /v1/pipeline/runs/{id}). Every entry carries a TTL:
//   - MemoryStore: map + periodic cleanup goroutine (single instance)
//   - SQLiteStore: one table, expired rows pruned on write (survives restarts)
//
// A TTL of zero keeps reports until Close (memory) or forever (sqlite).
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/compresr/context-pipeline/internal/monitoring"
)

// cleanupInterval is how often MemoryStore sweeps expired entries.
const cleanupInterval = 5 * time.Minute

// Store defines the interface for run report storage.
type Store interface {
	// Put stores a report under its RunID, replacing any previous one.
	Put(ctx context.Context, report *monitoring.RunReport) error

	// Get retrieves a report by run id. Expired reports are not returned.
	Get(ctx context.Context, runID string) (*monitoring.RunReport, bool, error)

	// Recent returns up to limit reports, newest first.
	Recent(ctx context.Context, limit int) ([]*monitoring.RunReport, error)

	// Close cleans up resources.
	Close() error
}

// Open builds the store named by kind ("memory" or "sqlite").
func Open(kind, path string, ttl time.Duration) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "sqlite":
		return OpenSQLite(path, ttl)
	default:
		return nil, fmt.Errorf("unknown store type %q", kind)
	}
}

// MemoryStore is a simple in-memory implementation of Store.
type MemoryStore struct {
	data     map[string]entry
	mu       sync.RWMutex
	ttl      time.Duration
	stopChan chan struct{}
	stopped  bool
}

type entry struct {
	report    *monitoring.RunReport
	storedAt  time.Time
	expiresAt time.Time // zero = never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		data:     make(map[string]entry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup()

	return s
}

// Put stores a report.
func (s *MemoryStore) Put(_ context.Context, report *monitoring.RunReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("store: report without run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	now := time.Now()
	e := entry{report: report, storedAt: now}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.data[report.RunID] = e
	return nil
}

// Get retrieves a report if it exists and hasn't expired.
func (s *MemoryStore) Get(_ context.Context, runID string) (*monitoring.RunReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[runID]
	if !exists || e.expired(time.Now()) {
		return nil, false, nil
	}
	return e.report, true, nil
}

// Recent returns up to limit live reports, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*monitoring.RunReport, error) {
	s.mu.RLock()
	now := time.Now()
	live := make([]entry, 0, len(s.data))
	for _, e := range s.data {
		if !e.expired(now) {
			live = append(live, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool { return live[i].storedAt.After(live[j].storedAt) })
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}

	out := make([]*monitoring.RunReport, len(live))
	for i, e := range live {
		out[i] = e.report
	}
	return out, nil
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.data = nil
	}
	return nil
}

// cleanup periodically removes expired entries.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	for key, e := range s.data {
		if e.expired(now) {
			delete(s.data, key)
		}
	}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
