// Package lifecycle holds the versioned secret model: immutable version records,
// per-name timelines and the registry that moves timelines between the active
// and deleted partitions.
package lifecycle

import (
	"maps"
	"time"
)

// Record is one immutable snapshot of a secret's value and metadata.
//
// Records are handed out by value. Clone must be used whenever a record leaves
// the registry so that callers never share the Tags map or timestamp pointers
// with stored state.
type Record struct {
	Name        string
	Version     string
	Value       string
	ContentType string
	Tags        map[string]string
	Enabled     bool

	CreatedOn time.Time
	UpdatedOn time.Time

	DeletedOn        *time.Time
	ScheduledPurgeOn *time.Time
}

// NewRecord builds an enabled, untagged snapshot for a freshly written value.
func NewRecord(name, version, value string, now time.Time) Record {
	return Record{
		Name:      name,
		Version:   version,
		Value:     value,
		Tags:      map[string]string{},
		Enabled:   true,
		CreatedOn: now,
		UpdatedOn: now,
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.Tags = maps.Clone(r.Tags)
	if out.Tags == nil {
		out.Tags = map[string]string{}
	}
	if r.DeletedOn != nil {
		t := *r.DeletedOn
		out.DeletedOn = &t
	}
	if r.ScheduledPurgeOn != nil {
		t := *r.ScheduledPurgeOn
		out.ScheduledPurgeOn = &t
	}
	return out
}

// IsDeleted reports whether the record carries a deletion stamp.
func (r Record) IsDeleted() bool {
	return r.DeletedOn != nil
}

// Properties carries a metadata change. Nil fields are left untouched; a
// non-nil Tags map replaces the existing tag set wholesale.
type Properties struct {
	Name        string
	ContentType *string
	Tags        map[string]string
	Enabled     *bool
}

// apply returns a copy of r with the metadata in p merged in.
func (p Properties) apply(r Record) Record {
	out := r.Clone()
	if p.ContentType != nil {
		out.ContentType = *p.ContentType
	}
	if p.Tags != nil {
		out.Tags = maps.Clone(p.Tags)
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	return out
}
