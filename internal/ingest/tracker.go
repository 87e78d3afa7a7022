package ingest

import (
	"sort"
	"sync"
	"time"

	"bandwatch/internal/model"
)

// Tracker remembers when each entity was last reported so that entities
// which drop out of the monitor's list keep showing up, idle, with their
// old LastSeen. That is what lets offline rules fire.
type Tracker struct {
	mu       sync.Mutex
	entities map[string]model.Entity
}

func NewTracker() *Tracker {
	return &Tracker{entities: map[string]model.Entity{}}
}

// Observe folds r into the tracked set and returns the snapshot for at.
// Entities are sorted by ID.
func (t *Tracker) Observe(at time.Time, r Reading) model.Snapshot {
	at = at.UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[string]bool, len(r.Devices))
	for _, dev := range r.Devices {
		dev.LastSeen = at
		if dev.Name == "" {
			dev.Name = t.entities[dev.ID].Name
		}
		t.entities[dev.ID] = dev
		present[dev.ID] = true
	}

	snap := model.Snapshot{TakenAt: at, Total: r.Total, Entities: make([]model.Entity, 0, len(t.entities))}
	for id, ent := range t.entities {
		if !present[id] {
			ent.Rate = model.Rate{}
			t.entities[id] = ent
		}
		snap.Entities = append(snap.Entities, ent)
	}
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].ID < snap.Entities[j].ID })
	return snap
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entities)
}
