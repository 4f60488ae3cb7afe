package lifecycle

import (
	"fmt"
	"sync"
	"time"
)

// Timeline is the append-only version history of a single secret name.
//
// The registry never exposes a *Timeline; every read returns cloned records.
type Timeline struct {
	name string

	mu      sync.RWMutex
	records []Record
}

func newTimeline(first Record) *Timeline {
	return &Timeline{
		name:    first.Name,
		records: []Record{first.Clone()},
	}
}

// Append adds r as the new current version.
func (t *Timeline) Append(r Record) error {
	if r.Name != t.name {
		return fmt.Errorf("%w: record %q appended to timeline %q", ErrInvalidArgument, r.Name, t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r.Clone())
	return nil
}

// Current returns a copy of the last appended record.
func (t *Timeline) Current() Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLocked().Clone()
}

// Version returns the record with the given version id.
func (t *Timeline) Version(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.records) - 1; i >= 0; i-- {
		if t.records[i].Version == id {
			return t.records[i].Clone(), true
		}
	}
	return Record{}, false
}

// Versions returns copies of all records in creation order.
func (t *Timeline) Versions() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = r.Clone()
	}
	return out
}

// UpdateCurrentMetadata amends contentType, tags and enabled on the current
// record without creating a new version, and refreshes UpdatedOn.
func (t *Timeline) UpdateCurrentMetadata(p Properties, now time.Time) Record {
	return t.amendCurrent(func(r Record) Record {
		r = p.apply(r)
		r.UpdatedOn = now
		return r
	})
}

func (t *Timeline) markDeleted(deletedOn, purgeOn time.Time) Record {
	return t.amendCurrent(func(r Record) Record {
		r.DeletedOn = &deletedOn
		r.ScheduledPurgeOn = &purgeOn
		return r
	})
}

func (t *Timeline) clearDeleted() Record {
	return t.amendCurrent(func(r Record) Record {
		r.DeletedOn = nil
		r.ScheduledPurgeOn = nil
		return r
	})
}

// amendCurrent swaps the current record for fn's result. The previous value
// is never mutated in place, so clones handed out earlier stay valid.
func (t *Timeline) amendCurrent(fn func(Record) Record) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	last := len(t.records) - 1
	next := fn(t.currentLocked().Clone())
	t.records[last] = next
	return next.Clone()
}

func (t *Timeline) currentLocked() Record {
	if len(t.records) == 0 {
		panic(fmt.Sprintf("lifecycle: timeline %q has no versions", t.name))
	}
	return t.records[len(t.records)-1]
}
