package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onetwotranscript/internal/transcript"
)

// StoredResult is a rendered transcript kept for download
type StoredResult struct {
	ID        string
	Document  transcript.Document
	Segments  []transcript.Segment
	Filename  string
	Backend   string
	Model     string
	Language  string
	Cached    bool
	Duration  time.Duration
	CreatedAt time.Time
}

// ResultStore keeps finished transcripts in memory until their TTL lapses
type ResultStore struct {
	mu     sync.RWMutex
	items  map[string]*StoredResult
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewResultStore creates an empty store
func NewResultStore(ttl time.Duration, logger *zap.Logger) *ResultStore {
	return &ResultStore{
		items:  make(map[string]*StoredResult),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Put stores result under a fresh UUID and returns it
func (s *ResultStore) Put(result StoredResult) *StoredResult {
	result.ID = uuid.NewString()
	result.CreatedAt = s.now()

	s.mu.Lock()
	s.items[result.ID] = &result
	s.mu.Unlock()

	return &result
}

// Get returns the result for id unless it is unknown or expired
func (s *ResultStore) Get(id string) (*StoredResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.items[id]
	if !ok || s.expired(result) {
		return nil, false
	}
	return result, true
}

// Len reports how many results are held, expired ones included until swept
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *ResultStore) expired(result *StoredResult) bool {
	return s.now().Sub(result.CreatedAt) >= s.ttl
}

// Sweep removes expired results and returns how many were dropped
func (s *ResultStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, result := range s.items {
		if s.expired(result) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done
func (s *ResultStore) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("expired transcripts evicted", zap.Int("removed", removed))
			}
		}
	}
}
