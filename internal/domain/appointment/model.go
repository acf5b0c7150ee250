package appointment

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusDeclined   Status = "declined"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

type Type string

const (
	TypeVideoCall Type = "VideoCall"
	TypeChat      Type = "Chat"
)

func (t Type) Valid() bool {
	return t == TypeVideoCall || t == TypeChat
}

// Outcome is the consultation summary recorded when a call is concluded.
type Outcome struct {
	Symptoms       string `json:"symptoms"`
	Diagnosis      string `json:"diagnosis"`
	TreatmentPlan  string `json:"treatmentPlan"`
	FollowUpAdvice string `json:"followUpAdvice"`
}

// Attachment is a document uploaded together with a booking.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// State is the status-specific part of an appointment. Only the variants
// that populate a call room or an outcome carry those fields.
type State interface {
	Status() Status
}

type (
	Pending   struct{}
	Confirmed struct{}
	Declined  struct{}
	Canceled  struct{}

	InProgress struct {
		RoomID string
	}

	Completed struct {
		RoomID  string
		Outcome Outcome
	}
)

func (Pending) Status() Status    { return StatusPending }
func (Confirmed) Status() Status  { return StatusConfirmed }
func (Declined) Status() Status   { return StatusDeclined }
func (Canceled) Status() Status   { return StatusCanceled }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }

// Appointment is the shared relation between one doctor and one patient.
type Appointment struct {
	ID             string
	DoctorID       string
	PatientID      string
	Date           time.Time
	ChiefComplaint string
	Type           Type
	Fee            *float64
	Attachment     *Attachment
	PatientJoined  bool
	DoctorJoined   bool
	State          State
	Revision       int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Appointment) Status() Status {
	if a.State == nil {
		return StatusPending
	}
	return a.State.Status()
}

// RoomID returns the call room, present once a call has been started.
func (a *Appointment) RoomID() (string, bool) {
	switch s := a.State.(type) {
	case InProgress:
		return s.RoomID, true
	case Completed:
		return s.RoomID, s.RoomID != ""
	}
	return "", false
}

func (a *Appointment) Outcome() (Outcome, bool) {
	if s, ok := a.State.(Completed); ok {
		return s.Outcome, true
	}
	return Outcome{}, false
}

// Bucket classifies the appointment relative to now.
func (a *Appointment) Bucket(now time.Time) Bucket {
	return Classify(a.Status(), a.Date, a.PatientJoined, now)
}

// Counterpart returns the id of the other party from the point of view of userID.
func (a *Appointment) Counterpart(userID string) string {
	if userID == a.DoctorID {
		return a.PatientID
	}
	return a.DoctorID
}

// Involves reports whether userID is the doctor or the patient.
func (a *Appointment) Involves(userID string) bool {
	return userID != "" && (userID == a.DoctorID || userID == a.PatientID)
}

func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.Fee != nil {
		fee := *a.Fee
		c.Fee = &fee
	}
	if a.Attachment != nil {
		att := *a.Attachment
		c.Attachment = &att
	}
	return &c
}

// record is the flat persisted and wire form of an Appointment.
type record struct {
	ID                   string    `json:"id" bson:"_id"`
	DoctorID             string    `json:"doctorId" bson:"doctorId"`
	PatientID            string    `json:"patientId" bson:"patientId"`
	AppointmentDate      time.Time `json:"appointmentDate" bson:"appointmentDate"`
	ChiefComplaint       string    `json:"chiefComplaint" bson:"chiefComplaint"`
	Type                 Type      `json:"type" bson:"type"`
	Status               Status    `json:"status" bson:"status"`
	Fee                  *float64  `json:"fee,omitempty" bson:"fee,omitempty"`
	AttachedDocumentURL  *string   `json:"attachedDocumentUrl,omitempty" bson:"attachedDocumentUrl,omitempty"`
	AttachedDocumentName *string   `json:"attachedDocumentName,omitempty" bson:"attachedDocumentName,omitempty"`
	RoomID               *string   `json:"zegoRoomId,omitempty" bson:"zegoRoomId,omitempty"`
	PatientJoined        bool      `json:"patientJoined" bson:"patientJoined"`
	DoctorJoined         bool      `json:"doctorJoined" bson:"doctorJoined"`
	Symptoms             *string   `json:"symptoms,omitempty" bson:"symptoms,omitempty"`
	Diagnosis            *string   `json:"diagnosis,omitempty" bson:"diagnosis,omitempty"`
	TreatmentPlan        *string   `json:"treatmentPlan,omitempty" bson:"treatmentPlan,omitempty"`
	FollowUpAdvice       *string   `json:"followUpAdvice,omitempty" bson:"followUpAdvice,omitempty"`
	Revision             int64     `json:"revision" bson:"revision"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt" bson:"updatedAt"`
}

func strPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (a *Appointment) toRecord() record {
	r := record{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		AppointmentDate: a.Date,
		ChiefComplaint:  a.ChiefComplaint,
		Type:            a.Type,
		Status:          a.Status(),
		Fee:             a.Fee,
		PatientJoined:   a.PatientJoined,
		DoctorJoined:    a.DoctorJoined,
		Revision:        a.Revision,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Attachment != nil {
		r.AttachedDocumentURL = strPtr(a.Attachment.URL)
		r.AttachedDocumentName = strPtr(a.Attachment.Name)
	}
	switch s := a.State.(type) {
	case InProgress:
		r.RoomID = strPtr(s.RoomID)
	case Completed:
		if s.RoomID != "" {
			r.RoomID = strPtr(s.RoomID)
		}
		r.Symptoms = strPtr(s.Outcome.Symptoms)
		r.Diagnosis = strPtr(s.Outcome.Diagnosis)
		r.TreatmentPlan = strPtr(s.Outcome.TreatmentPlan)
		r.FollowUpAdvice = strPtr(s.Outcome.FollowUpAdvice)
	}
	return r
}

func (r record) toAppointment() (*Appointment, error) {
	state, err := stateFor(r)
	if err != nil {
		return nil, err
	}
	a := &Appointment{
		ID:             r.ID,
		DoctorID:       r.DoctorID,
		PatientID:      r.PatientID,
		Date:           r.AppointmentDate,
		ChiefComplaint: r.ChiefComplaint,
		Type:           r.Type,
		Fee:            r.Fee,
		PatientJoined:  r.PatientJoined,
		DoctorJoined:   r.DoctorJoined,
		State:          state,
		Revision:       r.Revision,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.AttachedDocumentURL != nil {
		a.Attachment = &Attachment{URL: *r.AttachedDocumentURL, Name: deref(r.AttachedDocumentName)}
	}
	return a, nil
}

func stateFor(r record) (State, error) {
	status, err := ParseStatus(string(r.Status))
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusPending:
		return Pending{}, nil
	case StatusConfirmed:
		return Confirmed{}, nil
	case StatusDeclined:
		return Declined{}, nil
	case StatusCanceled:
		return Canceled{}, nil
	case StatusInProgress:
		return InProgress{RoomID: deref(r.RoomID)}, nil
	case StatusCompleted:
		return Completed{
			RoomID: deref(r.RoomID),
			Outcome: Outcome{
				Symptoms:       deref(r.Symptoms),
				Diagnosis:      deref(r.Diagnosis),
				TreatmentPlan:  deref(r.TreatmentPlan),
				FollowUpAdvice: deref(r.FollowUpAdvice),
			},
		}, nil
	}
	return nil, fmt.Errorf("unhandled status %q", status)
}

func (a *Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.toRecord())
}

func (a *Appointment) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	parsed, err := r.toAppointment()
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// Party is a resolved counterpart profile.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Found bool   `json:"found"`
}

// View pairs an appointment with the profile of the other party.
type View struct {
	Appointment *Appointment `json:"appointment"`
	Counterpart Party        `json:"counterpart"`
	Bucket      Bucket       `json:"bucket"`
}
