package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("appointment not found")

// Store is the persistence contract for appointments. Update is last write
// wins; implementations bump Revision on every successful write.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f Filter) ([]*Appointment, error)
	// Watch delivers the current result set of f followed by a new snapshot
	// after every change. The channel is closed when ctx is done.
	Watch(ctx context.Context, f Filter) (<-chan Snapshot, error)
}

type Order int

const (
	OrderDateAsc Order = iota
	OrderDateDesc
)

// Filter selects appointments. From is inclusive and To exclusive.
type Filter struct {
	DoctorID  string
	PatientID string
	Statuses  []Status
	From      *time.Time
	To        *time.Time
	Order     Order
	Limit     int
}

func (f Filter) Matches(a *Appointment) bool {
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status()) {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.Date.Before(*f.To) {
		return false
	}
	return true
}

// Signature is a canonical string for f. Equal filters have equal signatures
// regardless of the order statuses were given in.
func (f Filter) Signature() string {
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	sort.Strings(statuses)

	var b strings.Builder
	fmt.Fprintf(&b, "d=%s;p=%s;s=%s", f.DoctorID, f.PatientID, strings.Join(statuses, ","))
	if f.From != nil {
		fmt.Fprintf(&b, ";from=%d", f.From.UnixNano())
	}
	if f.To != nil {
		fmt.Fprintf(&b, ";to=%d", f.To.UnixNano())
	}
	fmt.Fprintf(&b, ";o=%d;l=%d", f.Order, f.Limit)
	return b.String()
}

// sortAndLimit orders items by date, then id, and applies the limit.
func (f Filter) sortAndLimit(items []*Appointment) []*Appointment {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			if f.Order == OrderDateDesc {
				return a.Date.After(b.Date)
			}
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type Change struct {
	Kind        ChangeKind
	Appointment *Appointment
}

// Snapshot is the result set of a live query with the changes since the
// previous delivery. The first snapshot reports every document as added.
type Snapshot struct {
	Appointments []*Appointment
	Changes      []Change
}
