package ingest

import (
	"testing"
	"time"

	"bandwatch/internal/model"
)

func TestTrackerKeepsMissingEntities(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := tr.Observe(t0, Reading{Devices: []model.Entity{
		{ID: "b", Name: "laptop", Rate: model.Rate{DownRate: 100}},
		{ID: "a", Name: "nas", Rate: model.Rate{UpRate: 50}},
	}})
	if len(snap.Entities) != 2 || snap.Entities[0].ID != "a" {
		t.Fatalf("expected sorted entities, got %+v", snap.Entities)
	}
	if !snap.Entities[1].LastSeen.Equal(t0) {
		t.Fatalf("last seen: %s", snap.Entities[1].LastSeen)
	}

	t1 := t0.Add(10 * time.Minute)
	snap = tr.Observe(t1, Reading{Devices: []model.Entity{{ID: "a", Rate: model.Rate{UpRate: 70}}}})
	if len(snap.Entities) != 2 {
		t.Fatalf("missing entity dropped: %+v", snap.Entities)
	}
	a, _ := snap.Entity("a")
	if !a.LastSeen.Equal(t1) || a.Name != "nas" || a.UpRate != 70 {
		t.Fatalf("a: %+v", a)
	}
	b, _ := snap.Entity("b")
	if !b.LastSeen.Equal(t0) || b.Sum() != 0 || b.Name != "laptop" {
		t.Fatalf("b: %+v", b)
	}
	if tr.Len() != 2 {
		t.Fatalf("len: %d", tr.Len())
	}
}
