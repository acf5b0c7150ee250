package appointment

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

type listFunc func(ctx context.Context) ([]*Appointment, error)

// watch runs a live query: it lists once, then re-lists whenever signal fires
// and emits the difference against the previous result. Signals arriving
// while a snapshot is being delivered are coalesced into one re-list.
func watch(ctx context.Context, list listFunc, signal <-chan struct{}, logger zerolog.Logger) (<-chan Snapshot, error) {
	initial, err := list(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)

		prev := make(map[string]*Appointment)
		snap := diff(prev, initial)
		prev = index(initial)
		if !send(ctx, out, snap) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signal:
				if !ok {
					return
				}
			}

			items, err := list(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("live query refresh failed")
				continue
			}
			snap := diff(prev, items)
			prev = index(items)
			if len(snap.Changes) == 0 {
				continue
			}
			if !send(ctx, out, snap) {
				return
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func index(items []*Appointment) map[string]*Appointment {
	m := make(map[string]*Appointment, len(items))
	for _, a := range items {
		m[a.ID] = a
	}
	return m
}

// diff reports additions and revision changes in result order, followed by removals.
func diff(prev map[string]*Appointment, next []*Appointment) Snapshot {
	snap := Snapshot{Appointments: next}
	seen := make(map[string]struct{}, len(next))
	for _, a := range next {
		seen[a.ID] = struct{}{}
		old, ok := prev[a.ID]
		switch {
		case !ok:
			snap.Changes = append(snap.Changes, Change{Kind: ChangeAdded, Appointment: a})
		case old.Revision != a.Revision:
			snap.Changes = append(snap.Changes, Change{Kind: ChangeModified, Appointment: a})
		}
	}
	var removed []*Appointment
	for id, old := range prev {
		if _, ok := seen[id]; !ok {
			removed = append(removed, old)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	for _, a := range removed {
		snap.Changes = append(snap.Changes, Change{Kind: ChangeRemoved, Appointment: a})
	}
	return snap
}

// broadcaster fans a change signal out to every registered watcher.
type broadcaster struct {
	mu      sync.Mutex
	signals map[chan struct{}]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{signals: make(map[chan struct{}]struct{})}
}

// subscribe registers a watcher until ctx is done.
func (b *broadcaster) subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.signals[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.signals, ch)
		b.mu.Unlock()
	}()
	return ch
}

func (b *broadcaster) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.signals {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *broadcaster) watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}
