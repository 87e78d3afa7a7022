// Package alerts keeps the most recent delivery summaries in memory so
// operators can see what was sent without a persisted receipt.
package alerts

import (
	"sync"
	"time"

	"bandwatch/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	buf   []model.DeliverySummary
	next  int
	full  bool
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{buf: make([]model.DeliverySummary, limit), limit: limit}
}

func (s *Store) Add(summary model.DeliverySummary) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = summary
	s.next = (s.next + 1) % s.limit
	if s.next == 0 {
		s.full = true
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return s.limit
	}
	return s.next
}

// List returns up to limit summaries, newest first. limit <= 0 means all.
func (s *Store) List(limit int) []model.DeliverySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.next
	if s.full {
		n = s.limit
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.DeliverySummary, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.next - 1 - i + s.limit) % s.limit
		out = append(out, s.buf[idx])
	}
	return out
}

// Since returns summaries recorded at or after ts, newest first.
func (s *Store) Since(ts time.Time) []model.DeliverySummary {
	var out []model.DeliverySummary
	for _, d := range s.List(0) {
		if d.Timestamp.Before(ts) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = make([]model.DeliverySummary, s.limit)
	s.next = 0
	s.full = false
}
