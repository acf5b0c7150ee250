package appointment

import (
	"context"
	"time"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/jobs"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/notification"
)

// Reminders feeds confirmed appointments to the reminder job. Each
// appointment yields one reminder for each party.
type Reminders struct {
	lister    Lister
	resolver  resolver
	templates *notification.TemplateEngine
}

func NewReminders(lister Lister, dir Directory, templates *notification.TemplateEngine) *Reminders {
	return &Reminders{lister: lister, resolver: resolver{dir: dir}, templates: templates}
}

func (r *Reminders) DueReminders(ctx context.Context, from, to time.Time) ([]jobs.Reminder, error) {
	items, err := r.lister.List(ctx, Filter{Statuses: []Status{StatusConfirmed}, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	doctors := r.resolver.counterparts(ctx, ActorPatient, items)
	patients := r.resolver.counterparts(ctx, ActorDoctor, items)
	out := make([]jobs.Reminder, 0, 2*len(items))
	for i, a := range items {
		out = append(out,
			r.reminder(a, a.PatientID, doctors[i].Name),
			r.reminder(a, a.DoctorID, patients[i].Name))
	}
	return out, nil
}

func (r *Reminders) reminder(a *Appointment, userID, counterpart string) jobs.Reminder {
	rem := jobs.Reminder{
		AppointmentID: a.ID,
		Revision:      a.Revision,
		UserID:        userID,
		StartsAt:      a.Date,
		Title:         "Upcoming appointment",
		Body:          "You have an appointment with " + counterpart + ".",
	}
	if r.templates == nil {
		return rem
	}
	title, body, err := r.templates.Render(notification.AppointmentReminder, map[string]string{
		"name": counterpart,
		"time": a.Date.UTC().Format("15:04 MST"),
	})
	if err == nil {
		rem.Title, rem.Body = title, body
	}
	return rem
}
