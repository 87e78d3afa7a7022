package alerts

import (
	"testing"
	"time"

	"bandwatch/internal/model"
)

func TestStoreRingNewestFirst(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		s.Add(model.DeliverySummary{EventID: int64(i), Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len())
	}
	got := s.List(0)
	if len(got) != 3 || got[0].EventID != 5 || got[2].EventID != 3 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if top := s.List(1); len(top) != 1 || top[0].EventID != 5 {
		t.Fatalf("limit: %+v", top)
	}
	since := s.Since(base.Add(4 * time.Second))
	if len(since) != 2 {
		t.Fatalf("since: %+v", since)
	}
	s.Clear()
	if s.Len() != 0 || len(s.List(0)) != 0 {
		t.Fatalf("clear left entries")
	}
}

func TestNilStoreAdd(t *testing.T) {
	var s *Store
	s.Add(model.DeliverySummary{EventID: 1})
}
