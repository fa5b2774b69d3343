package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

type Clock func() time.Time

// DedupSet tracks which farmer/signal/crop combinations already
// received an advisory in the current hour. In-memory only: it bounds
// repeat sends within a process lifetime, the delivery log dedup is the
// durable guard.
type DedupSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	clock Clock
}

func NewDedupSet(clock Clock) *DedupSet {
	if clock == nil {
		clock = time.Now
	}
	return &DedupSet{
		seen:  make(map[string]struct{}),
		clock: clock,
	}
}

// Key includes the hour of day so entries expire naturally when the
// hour rolls over.
func (d *DedupSet) Key(farmerID, primarySignal, cropType string) string {
	return fmt.Sprintf("%s:%s:%s:%d", farmerID, primarySignal, cropType, d.clock().Hour())
}

func (d *DedupSet) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

func (d *DedupSet) Mark(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = struct{}{}
}

func (d *DedupSet) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}

func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
