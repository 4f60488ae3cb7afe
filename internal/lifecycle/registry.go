package lifecycle

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultRetention is how long a deleted secret stays recoverable.
const DefaultRetention = 90 * 24 * time.Hour

// Registry holds every timeline, partitioned into active and deleted.
//
// The registry's own lock only guards the two maps; it keeps a name from
// appearing in both partitions. Sequences that read a partition and then act
// on the timeline (set, update) must be serialized per name by the caller.
type Registry struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	active  map[string]*Timeline
	deleted map[string]*Timeline
}

// NewRegistry creates an empty registry. A zero retention selects
// DefaultRetention and a nil clock selects time.Now in UTC.
func NewRegistry(retention time.Duration, now func() time.Time) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		retention: retention,
		now:       now,
		active:    make(map[string]*Timeline),
		deleted:   make(map[string]*Timeline),
	}
}

// SetActive records rec as the newest version of rec.Name.
//
// A name sitting in the deleted partition is re-created from scratch: its
// deleted history is dropped and a fresh active timeline starts with rec.
func (r *Registry) SetActive(rec Record) (Record, error) {
	if rec.Name == "" {
		return Record{}, fmt.Errorf("%w: empty secret name", ErrInvalidArgument)
	}

	r.mu.Lock()
	t, ok := r.active[rec.Name]
	if !ok {
		delete(r.deleted, rec.Name)
		t = newTimeline(rec)
		r.active[rec.Name] = t
		r.mu.Unlock()
		return t.Current(), nil
	}
	r.mu.Unlock()

	if err := t.Append(rec); err != nil {
		return Record{}, err
	}
	return t.Current(), nil
}

// GetActive returns the current version of an active secret.
func (r *Registry) GetActive(name string) (Record, error) {
	t, err := r.activeTimeline(name)
	if err != nil {
		return Record{}, err
	}
	return t.Current(), nil
}

// GetActiveVersion returns a specific version of an active secret.
func (r *Registry) GetActiveVersion(name, version string) (Record, error) {
	t, err := r.activeTimeline(name)
	if err != nil {
		return Record{}, err
	}
	rec, ok := t.Version(version)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s version %s", ErrSecretNotFound, name, version)
	}
	return rec, nil
}

// Versions returns the full history of an active secret.
func (r *Registry) Versions(name string) ([]Record, error) {
	t, err := r.activeTimeline(name)
	if err != nil {
		return nil, err
	}
	return t.Versions(), nil
}

// GetDeleted returns the current version of a soft-deleted secret.
func (r *Registry) GetDeleted(name string) (Record, error) {
	r.mu.RLock()
	t, ok := r.deleted[name]
	r.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrDeletedSecretNotFound, name)
	}
	return t.Current(), nil
}

// Delete moves a timeline from active to deleted, stamping the deletion and
// scheduled purge dates on its current record.
func (r *Registry) Delete(name string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.active[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	now := r.now()
	rec := t.markDeleted(now, now.Add(r.retention))
	delete(r.active, name)
	r.deleted[name] = t
	return rec, nil
}

// Recover moves a timeline from deleted back to active.
func (r *Registry) Recover(name string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.deleted[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrDeletedSecretNotFound, name)
	}
	rec := t.clearDeleted()
	delete(r.deleted, name)
	r.active[name] = t
	return rec, nil
}

// Purge permanently removes a deleted timeline.
func (r *Registry) Purge(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deleted[name]; !ok {
		return fmt.Errorf("%w: %s", ErrDeletedSecretNotFound, name)
	}
	delete(r.deleted, name)
	return nil
}

// UpdateMetadata amends the current record of an active secret.
func (r *Registry) UpdateMetadata(p Properties) (Record, error) {
	t, err := r.activeTimeline(p.Name)
	if err != nil {
		return Record{}, err
	}
	return t.UpdateCurrentMetadata(p, r.now()), nil
}

// ListActive returns the current record of every active secret, sorted by name.
func (r *Registry) ListActive() []Record {
	return r.currents(r.active)
}

// ListDeleted returns the current record of every deleted secret, sorted by name.
func (r *Registry) ListDeleted() []Record {
	return r.currents(r.deleted)
}

// Expired returns the names of deleted secrets whose scheduled purge date is
// at or before now.
func (r *Registry) Expired(now time.Time) []string {
	var names []string
	for _, rec := range r.ListDeleted() {
		if rec.ScheduledPurgeOn != nil && !rec.ScheduledPurgeOn.After(now) {
			names = append(names, rec.Name)
		}
	}
	return names
}

// Counts returns the sizes of the active and deleted partitions.
func (r *Registry) Counts() (active, deleted int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active), len(r.deleted)
}

// Partition reports where name currently lives: "active", "deleted" or "".
func (r *Registry) Partition(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, inActive := r.active[name]
	_, inDeleted := r.deleted[name]
	switch {
	case inActive && inDeleted:
		panic(fmt.Sprintf("lifecycle: %q present in both partitions", name))
	case inActive:
		return "active"
	case inDeleted:
		return "deleted"
	}
	return ""
}

func (r *Registry) activeTimeline(name string) (*Timeline, error) {
	r.mu.RLock()
	t, ok := r.active[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return t, nil
}

// currents reads every record while holding the read lock, so a concurrent
// Delete or Recover cannot stamp a record after its partition was sampled.
func (r *Registry) currents(m map[string]*Timeline) []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(m))
	for _, t := range m {
		out = append(out, t.Current())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
