package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("action not permitted for this user")
)

type Action string

const (
	ActionBook       Action = "book"
	ActionAccept     Action = "accept"
	ActionDecline    Action = "decline"
	ActionStartCall  Action = "start-call"
	ActionConclude   Action = "conclude"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
)

// Actor is the role on whose behalf an action is performed.
type Actor string

const (
	ActorDoctor  Actor = "doctor"
	ActorPatient Actor = "patient"
	// ActorAdmin may perform any action a doctor or patient may.
	ActorAdmin Actor = "admin"
)

// statusApproved is accepted on input as a spelling of confirmed.
const statusApproved = "approved"

var (
	AllStatuses      = []Status{StatusPending, StatusConfirmed, StatusDeclined, StatusInProgress, StatusCompleted, StatusCanceled}
	ActiveStatuses   = []Status{StatusConfirmed, StatusInProgress}
	TerminalStatuses = []Status{StatusCompleted, StatusDeclined, StatusCanceled}
	HistoryStatuses  = []Status{StatusCompleted, StatusInProgress, StatusDeclined, StatusCanceled}
)

type transition struct {
	from  []Status
	to    Status
	actor Actor
}

var transitions = map[Action]transition{
	ActionAccept:     {from: []Status{StatusPending}, to: StatusConfirmed, actor: ActorDoctor},
	ActionDecline:    {from: []Status{StatusPending}, to: StatusDeclined, actor: ActorDoctor},
	ActionStartCall:  {from: []Status{StatusConfirmed}, to: StatusInProgress, actor: ActorDoctor},
	ActionConclude:   {from: []Status{StatusInProgress}, to: StatusCompleted, actor: ActorDoctor},
	ActionReschedule: {from: []Status{StatusPending, StatusConfirmed, StatusDeclined}, to: StatusPending, actor: ActorPatient},
	ActionCancel:     {from: []Status{StatusPending, StatusConfirmed}, to: StatusCanceled, actor: ActorPatient},
}

// Next returns the status reached by applying action to from on behalf of actor.
func Next(from Status, action Action, actor Actor) (Status, error) {
	if action == ActionBook {
		if actor != ActorPatient && actor != ActorAdmin {
			return "", fmt.Errorf("%w: only a patient may book", ErrForbidden)
		}
		return StatusPending, nil
	}
	t, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if actor != t.actor && actor != ActorAdmin {
		return "", fmt.Errorf("%w: %s requires the %s", ErrForbidden, action, t.actor)
	}
	if !containsStatus(t.from, from) {
		return "", fmt.Errorf("%w: cannot %s an appointment that is %s", ErrInvalidTransition, action, from)
	}
	return t.to, nil
}

// ActionFor returns the action that moves an appointment into status.
func ActionFor(status Status) (Action, error) {
	switch status {
	case StatusConfirmed:
		return ActionAccept, nil
	case StatusDeclined:
		return ActionDecline, nil
	case StatusInProgress:
		return ActionStartCall, nil
	case StatusCompleted:
		return ActionConclude, nil
	case StatusCanceled:
		return ActionCancel, nil
	case StatusPending:
		return "", fmt.Errorf("%w: returning to pending needs a new date, use reschedule", ErrInvalidTransition)
	}
	return "", fmt.Errorf("%w: no action leads to %q", ErrInvalidTransition, status)
}

// ParseStatus parses a status name. "approved" is read as confirmed.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == statusApproved {
		return StatusConfirmed, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// ParseStatuses parses a list of status names, also splitting comma separated values.
func ParseStatuses(values []string) ([]Status, error) {
	var out []Status
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := ParseStatus(part)
			if err != nil {
				return nil, err
			}
			if !containsStatus(out, st) {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

func (s Status) Valid() bool {
	return containsStatus(AllStatuses, s)
}

func (s Status) Terminal() bool {
	return containsStatus(TerminalStatuses, s)
}

func (s Status) Active() bool {
	return containsStatus(ActiveStatuses, s)
}

func containsStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Bucket is the derived view an appointment falls into. It is never stored.
type Bucket string

const (
	BucketUpcoming Bucket = "upcoming"
	BucketPast     Bucket = "past"
	BucketMissed   Bucket = "missed"
	BucketOther    Bucket = "other"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketUpcoming, BucketPast, BucketMissed, BucketOther:
		return b, nil
	}
	return "", fmt.Errorf("unknown bucket %q", s)
}

// IsUpcoming: active and not yet due.
func IsUpcoming(status Status, date time.Time, patientJoined bool, now time.Time) bool {
	return status.Active() && !date.Before(now)
}

// IsPast: the patient attended a past appointment, or it was completed.
func IsPast(status Status, date time.Time, patientJoined bool, now time.Time) bool {
	return (date.Before(now) && patientJoined) || status == StatusCompleted
}

// IsMissed: active, due, and the patient never joined.
func IsMissed(status Status, date time.Time, patientJoined bool, now time.Time) bool {
	return status.Active() && date.Before(now) && !patientJoined
}

// Classify picks exactly one bucket. When several predicates hold, past wins
// over missed, and missed over upcoming.
func Classify(status Status, date time.Time, patientJoined bool, now time.Time) Bucket {
	switch {
	case IsPast(status, date, patientJoined, now):
		return BucketPast
	case IsMissed(status, date, patientJoined, now):
		return BucketMissed
	case IsUpcoming(status, date, patientJoined, now):
		return BucketUpcoming
	}
	return BucketOther
}
