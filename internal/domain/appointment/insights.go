package appointment

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

// DocumentChecker reports whether a user has uploaded any medical record.
type DocumentChecker interface {
	HasDocuments(ctx context.Context, userID string) (bool, error)
}

// Insights computes the doctor dashboard figures.
type Insights struct {
	lister   Lister
	docs     DocumentChecker
	resolver resolver
	now      func() time.Time
	logger   zerolog.Logger
}

func NewInsights(lister Lister, docs DocumentChecker, dir Directory, logger zerolog.Logger) *Insights {
	return &Insights{
		lister:   lister,
		docs:     docs,
		resolver: resolver{dir: dir, logger: logger},
		now:      time.Now,
		logger:   logger,
	}
}

type DashboardStats struct {
	TodayCount     int     `json:"todayCount"`
	PendingCount   int     `json:"pendingCount"`
	WeeklyEarnings float64 `json:"weeklyEarnings"`
}

// DashboardStats counts today's live appointments (in loc), pending requests,
// and the fees of appointments completed during the last seven days.
func (in *Insights) DashboardStats(ctx context.Context, doctorID string, loc *time.Location) (*DashboardStats, error) {
	if loc == nil {
		loc = time.UTC
	}
	items, err := in.lister.List(ctx, Filter{DoctorID: doctorID})
	if err != nil {
		return nil, err
	}

	now := in.now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekStart := now.AddDate(0, 0, -7)

	stats := &DashboardStats{}
	for _, a := range items {
		st := a.Status()
		if st == StatusPending {
			stats.PendingCount++
		}
		if !a.Date.Before(dayStart) && a.Date.Before(dayEnd) && st != StatusDeclined && st != StatusCanceled {
			stats.TodayCount++
		}
		if st == StatusCompleted && a.Fee != nil && !a.Date.Before(weekStart) && !a.Date.After(now) {
			stats.WeeklyEarnings += *a.Fee
		}
	}
	return stats, nil
}

// PatientSummary is one entry of a doctor's patient list.
type PatientSummary struct {
	Patient         Party     `json:"patient"`
	Appointments    int       `json:"appointments"`
	LastAppointment time.Time `json:"lastAppointment"`
	HasDocuments    bool      `json:"hasDocuments"`
}

// DoctorPatients lists every patient that booked with doctorID, most recent first.
func (in *Insights) DoctorPatients(ctx context.Context, doctorID string) ([]PatientSummary, error) {
	items, err := in.lister.List(ctx, Filter{DoctorID: doctorID, Order: OrderDateDesc})
	if err != nil {
		return nil, err
	}

	var firsts []*Appointment
	byPatient := make(map[string]*PatientSummary)
	for _, a := range items {
		s, ok := byPatient[a.PatientID]
		if !ok {
			s = &PatientSummary{LastAppointment: a.Date}
			byPatient[a.PatientID] = s
			firsts = append(firsts, a)
		}
		s.Appointments++
	}

	parties := in.resolver.counterparts(ctx, ActorDoctor, firsts)
	out := make([]PatientSummary, 0, len(firsts))
	for i, a := range firsts {
		s := byPatient[a.PatientID]
		s.Patient = parties[i]
		if in.docs != nil {
			has, err := in.docs.HasDocuments(ctx, a.PatientID)
			if err != nil {
				in.logger.Warn().Err(err).Str("patient_id", a.PatientID).Msg("document lookup failed")
			}
			s.HasDocuments = has
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastAppointment.After(out[j].LastAppointment)
	})
	return out, nil
}

// ConsultationHistory returns the doctor's finished or running consultations,
// newest first. statuses narrows the history set; others are ignored.
func (in *Insights) ConsultationHistory(ctx context.Context, doctorID string, statuses []Status, page pagination.Params) ([]View, int, error) {
	set := HistoryStatuses
	if len(statuses) > 0 {
		set = nil
		for _, st := range statuses {
			if containsStatus(HistoryStatuses, st) {
				set = append(set, st)
			}
		}
		if len(set) == 0 {
			return []View{}, 0, nil
		}
	}

	items, err := in.lister.List(ctx, Filter{DoctorID: doctorID, Statuses: set, Order: OrderDateDesc})
	if err != nil {
		return nil, 0, err
	}
	total := len(items)
	items = pagination.Slice(items, page)

	parties := in.resolver.counterparts(ctx, ActorDoctor, items)
	now := in.now()
	views := make([]View, len(items))
	for i, a := range items {
		views[i] = View{Appointment: a, Counterpart: parties[i], Bucket: a.Bucket(now)}
	}
	return views, total, nil
}
