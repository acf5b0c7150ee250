package appointment

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/notification"
)

// EventNotification is the websocket event type of dispatcher notifications.
const EventNotification = "appointment.notification"

// Subscriber opens live queries.
type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (<-chan Snapshot, error)
}

// Watch describes what a user wants to be notified about.
type Watch struct {
	UserID   string
	Actor    Actor
	Statuses []Status
}

// DefaultWatch is the watch-set used when a client does not name one.
func DefaultWatch(actor Actor) []Status {
	if actor == ActorDoctor {
		return []Status{StatusPending, StatusCanceled}
	}
	return []Status{StatusConfirmed, StatusDeclined, StatusInProgress, StatusCompleted}
}

// Notification tells a user about a change to one of their appointments.
type Notification struct {
	AppointmentID string     `json:"appointmentId"`
	Kind          ChangeKind `json:"kind"`
	Status        Status     `json:"status"`
	Counterpart   Party      `json:"counterpart"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Dispatcher turns live query snapshots into notifications.
type Dispatcher struct {
	source    Subscriber
	resolver  resolver
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

func NewDispatcher(source Subscriber, dir Directory, templates *notification.TemplateEngine, logger zerolog.Logger) *Dispatcher {
	logger = logger.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		source:    source,
		resolver:  resolver{dir: dir, logger: logger},
		templates: templates,
		logger:    logger,
	}
}

// Subscription delivers notifications on C until Close is called or the
// parent context ends. C is closed afterwards.
type Subscription struct {
	C <-chan Notification

	pastInitialLoad atomic.Bool
	cancel          context.CancelFunc
	done            chan struct{}
}

// Live reports whether the initial snapshot has been consumed. Only changes
// arriving after that point produce notifications.
func (s *Subscription) Live() bool {
	return s.pastInitialLoad.Load()
}

// Close stops the subscription. No notification is delivered once it returns.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe starts watching the appointments of w.UserID whose status is in
// the watch-set.
func (d *Dispatcher) Subscribe(ctx context.Context, w Watch) (*Subscription, error) {
	if w.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if w.Actor != ActorDoctor && w.Actor != ActorPatient {
		return nil, fmt.Errorf("%w: notifications are for doctors and patients", ErrValidation)
	}
	if len(w.Statuses) == 0 {
		w.Statuses = DefaultWatch(w.Actor)
	}

	f := Filter{Statuses: w.Statuses}
	if w.Actor == ActorDoctor {
		f.DoctorID = w.UserID
	} else {
		f.PatientID = w.UserID
	}

	ctx, cancel := context.WithCancel(ctx)
	snapshots, err := d.source.Subscribe(ctx, f)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Notification)
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}
	go d.run(ctx, sub, w, snapshots, out)
	return sub, nil
}

func (d *Dispatcher) run(ctx context.Context, sub *Subscription, w Watch, snapshots <-chan Snapshot, out chan<- Notification) {
	defer close(sub.done)
	defer close(out)
	defer sub.cancel()

	for snap := range snapshots {
		if !sub.pastInitialLoad.Load() {
			sub.pastInitialLoad.Store(true)
			continue
		}

		var changed []*Appointment
		var kinds []ChangeKind
		for _, ch := range snap.Changes {
			if ch.Kind == ChangeRemoved || !containsStatus(w.Statuses, ch.Appointment.Status()) {
				continue
			}
			changed = append(changed, ch.Appointment)
			kinds = append(kinds, ch.Kind)
		}
		if len(changed) == 0 {
			continue
		}

		parties := d.resolver.counterparts(ctx, w.Actor, changed)
		for i, a := range changed {
			n := d.render(w.Actor, a, kinds[i], parties[i])
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) render(viewer Actor, a *Appointment, kind ChangeKind, party Party) Notification {
	n := Notification{
		AppointmentID: a.ID,
		Kind:          kind,
		Status:        a.Status(),
		Counterpart:   party,
		Timestamp:     a.Date,
	}

	audience := notification.AudiencePatient
	if viewer == ActorDoctor {
		audience = notification.AudienceDoctor
	}
	id := notification.StatusTemplateID(audience, string(a.Status()))
	data := map[string]string{
		"name": party.Name,
		"date": a.Date.UTC().Format("Jan 2, 2006"),
		"time": a.Date.UTC().Format("15:04 MST"),
	}
	if d.templates != nil && d.templates.Has(id) {
		title, body, err := d.templates.Render(id, data)
		if err == nil {
			n.Title, n.Message = title, body
			return n
		}
		d.logger.Warn().Err(err).Str("template", id).Msg("render notification")
	}
	n.Title = "Appointment update"
	n.Message = fmt.Sprintf("Your appointment with %s is now %s.", party.Name, a.Status())
	return n
}
