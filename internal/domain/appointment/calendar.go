package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Participant names one side of appointments: a doctor or a patient.
type Participant struct {
	ID    string
	Actor Actor
}

// Calendar answers month views.
type Calendar struct {
	lister Lister
}

func NewCalendar(lister Lister) *Calendar {
	return &Calendar{lister: lister}
}

// Days returns the sorted days of month, in loc, on which party has at
// least one appointment.
func (c *Calendar) Days(ctx context.Context, party Participant, year int, month time.Month, loc *time.Location) ([]int, error) {
	if party.ID == "" {
		return nil, fmt.Errorf("%w: party id is required", ErrValidation)
	}
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d out of range", ErrValidation, month)
	}
	if loc == nil {
		loc = time.UTC
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)
	f := Filter{From: &first, To: &next}
	switch party.Actor {
	case ActorDoctor:
		f.DoctorID = party.ID
	case ActorPatient:
		f.PatientID = party.ID
	default:
		return nil, fmt.Errorf("%w: unknown party role %q", ErrValidation, party.Actor)
	}

	items, err := c.lister.List(ctx, f)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	days := []int{}
	for _, a := range items {
		d := a.Date.In(loc).Day()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Ints(days)
	return days, nil
}
