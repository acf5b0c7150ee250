package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/domain/medicalrecord"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/websocket"
)

const (
	testDoctor  = "doc-1"
	testPatient = "pat-1"
)

var (
	doctorCaller  = Caller{UserID: testDoctor, Actor: ActorDoctor}
	patientCaller = Caller{UserID: testPatient, Actor: ActorPatient}
)

type fakeDirectory struct {
	doctors  map[string]string
	patients map[string]string
	err      error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors:  map[string]string{testDoctor: "Dr. Rao"},
		patients: map[string]string{testPatient: "Asha Menon"},
	}
}

func pick(src map[string]string, ids []string) map[string]string {
	out := make(map[string]string)
	for _, id := range ids {
		if name, ok := src[id]; ok {
			out[id] = name
		}
	}
	return out
}

func (d *fakeDirectory) DoctorNames(_ context.Context, ids []string) (map[string]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return pick(d.doctors, ids), nil
}

func (d *fakeDirectory) PatientNames(_ context.Context, ids []string) (map[string]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return pick(d.patients, ids), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingAppender struct {
	records []*medicalrecord.Record
	err     error
}

func (a *recordingAppender) Append(_ context.Context, r *medicalrecord.Record) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, r)
	return nil
}

var errBoom = errors.New("boom")

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(zerolog.Nop())
	return NewService(store, newFakeDirectory(), opts...), store
}

func futureDate() time.Time {
	return time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
}

// seed stores an appointment directly, bypassing the lifecycle.
func seed(t *testing.T, store Store, state State, date time.Time) *Appointment {
	t.Helper()
	a := &Appointment{
		DoctorID:       testDoctor,
		PatientID:      testPatient,
		Date:           date,
		ChiefComplaint: "headache",
		Type:           TypeVideoCall,
		State:          state,
	}
	require.NoError(t, store.Create(context.Background(), a))
	return a
}

func bookOne(t *testing.T, svc *Service) *Appointment {
	t.Helper()
	a, err := svc.Book(context.Background(), patientCaller, BookInput{
		DoctorID:       testDoctor,
		Date:           futureDate(),
		ChiefComplaint: "persistent cough",
	})
	require.NoError(t, err)
	return a
}
