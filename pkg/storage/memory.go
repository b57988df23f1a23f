package storage

import (
	"context"
	"sync"
	"time"

	"github.com/HatiCode/demandcast/pkg/reporting"
)

// MemoryStore implements an in-memory report store.
// It is safe for concurrent use by multiple goroutines.
//
// MemoryStore keeps the newest reports per region, up to a fixed history
// length. If TTL is configured, a background goroutine removes reports
// older than the TTL. For multi-instance deployments use RedisStore or
// PostgresStore instead.
type MemoryStore struct {
	mu            sync.RWMutex
	reports       map[string][]reporting.Report // newest last
	history       int
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store keeping history reports per
// region (DefaultHistory when history <= 0) with no TTL.
func NewMemoryStore(history int) *MemoryStore {
	if history <= 0 {
		history = DefaultHistory
	}
	return &MemoryStore{
		reports: make(map[string][]reporting.Report),
		history: history,
	}
}

// NewMemoryStoreWithTTL creates an in-memory store with TTL-based cleanup.
// A background goroutine runs every cleanupInterval (default one minute)
// and drops reports generated more than ttl ago.
//
// Stop must be called when the store is no longer needed.
func NewMemoryStoreWithTTL(history int, ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := NewMemoryStore(history)
	store.ttl = ttl
	store.cleanupTicker = time.NewTicker(cleanupInterval)
	store.stopCleanup = make(chan struct{})
	store.cleanupDone = make(chan struct{})

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine and blocks until it exits.
// Calling Stop multiple times or on a store without TTL is safe.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes reports older than the TTL.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for region, reports := range s.reports {
		kept := reports[:0]
		for _, r := range reports {
			if now.Sub(r.GeneratedAt) <= s.ttl {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.reports, region)
			continue
		}
		s.reports[region] = kept
	}
}

// Put appends a report to its region, evicting the oldest beyond the
// history length.
func (s *MemoryStore) Put(ctx context.Context, report reporting.Report) error {
	if err := ValidateRegion(report.Region); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reports := append(s.reports[report.Region], report)
	if len(reports) > s.history {
		reports = append([]reporting.Report(nil), reports[len(reports)-s.history:]...)
	}
	s.reports[report.Region] = reports
	return nil
}

// GetLatest returns the newest report for region.
func (s *MemoryStore) GetLatest(ctx context.Context, region string) (reporting.Report, bool, error) {
	select {
	case <-ctx.Done():
		return reporting.Report{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := s.reports[region]
	if len(reports) == 0 {
		return reporting.Report{}, false, nil
	}
	return reports[len(reports)-1], true, nil
}

// List returns up to limit reports for region, newest first.
func (s *MemoryStore) List(ctx context.Context, region string, limit int) ([]reporting.Report, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := s.reports[region]
	n := len(reports)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]reporting.Report, 0, n)
	for i := len(reports) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, reports[i])
	}
	return out, nil
}

// Len returns the number of reports currently stored across regions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, reports := range s.reports {
		n += len(reports)
	}
	return n
}

// Delete removes every report of region.
// Returns true if any report was deleted.
func (s *MemoryStore) Delete(region string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.reports[region]
	delete(s.reports, region)
	return existed
}
