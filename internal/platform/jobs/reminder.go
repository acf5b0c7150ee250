package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/cache"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/websocket"
)

// EventReminder is the event type pushed to a user before an appointment.
const EventReminder = "appointment.reminder"

// Reminder is one notice addressed to one user.
type Reminder struct {
	AppointmentID string    `json:"appointmentId"`
	Revision      int64     `json:"-"`
	UserID        string    `json:"userId"`
	StartsAt      time.Time `json:"startsAt"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
}

// ReminderSource lists reminders for appointments starting in [from, to).
type ReminderSource interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]Reminder, error)
}

// ReminderJob pushes reminders to each user's private topic. A reminder is
// sent once per appointment revision; rescheduling makes it eligible again.
type ReminderJob struct {
	source    ReminderSource
	publisher websocket.EventPublisher
	sent      cache.Provider
	window    time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReminderJob(source ReminderSource, publisher websocket.EventPublisher, sent cache.Provider, window time.Duration, logger zerolog.Logger) *ReminderJob {
	return &ReminderJob{
		source:    source,
		publisher: publisher,
		sent:      sent,
		window:    window,
		now:       time.Now,
		logger:    logger.With().Str("job", "reminders").Logger(),
	}
}

func sentKey(r Reminder) string {
	return fmt.Sprintf("reminders:sent:%s:%s:%d", r.AppointmentID, r.UserID, r.Revision)
}

// Run performs one sweep and returns the number of reminders published.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	now := j.now()
	due, err := j.source.DueReminders(ctx, now, now.Add(j.window))
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	published := 0
	for _, r := range due {
		key := sentKey(r)
		if seen, err := j.sent.Exists(ctx, key); err == nil && seen {
			continue
		}
		event, err := websocket.NewEvent(EventReminder, websocket.UserTopic(r.UserID), r.AppointmentID, r)
		if err != nil {
			return published, err
		}
		if err := j.publisher.Publish(ctx, event); err != nil {
			j.logger.Warn().Err(err).Str("appointment_id", r.AppointmentID).Msg("publish reminder failed")
			continue
		}
		// Keep the marker until the appointment has started.
		if err := j.sent.Set(ctx, key, []byte("1"), r.StartsAt.Sub(now)+time.Minute); err != nil {
			j.logger.Warn().Err(err).Str("key", key).Msg("record sent reminder failed")
		}
		published++
	}
	if published > 0 {
		j.logger.Info().Int("count", published).Msg("reminders sent")
	}
	return published, nil
}

// Job adapts Run to the scheduler.
func (j *ReminderJob) Job() Func {
	return func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	}
}
