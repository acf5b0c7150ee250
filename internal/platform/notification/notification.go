// Package notification renders user-facing notification text from named
// templates with {{key}} placeholders.
package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Audience is the party a template is written for.
type Audience string

const (
	AudiencePatient Audience = "patient"
	AudienceDoctor  Audience = "doctor"
)

// Template ids for appointment status changes.
const (
	PatientConfirmed    = "patient.appointment.confirmed"
	PatientDeclined     = "patient.appointment.declined"
	PatientCompleted    = "patient.appointment.completed"
	PatientCallStarted  = "patient.appointment.in-progress"
	PatientCanceled     = "patient.appointment.canceled"
	DoctorNewRequest    = "doctor.appointment.pending"
	DoctorCanceled      = "doctor.appointment.canceled"
	AppointmentReminder = "appointment.reminder"
)

// Template defines a reusable notification template.
type Template struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Audience Audience `json:"audience"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:       PatientConfirmed,
			Name:     "Appointment Confirmed",
			Title:    "Appointment confirmed",
			Body:     "{{name}} confirmed your appointment.",
			Audience: AudiencePatient,
		},
		{
			ID:       PatientDeclined,
			Name:     "Appointment Declined",
			Title:    "Appointment declined",
			Body:     "{{name}} declined your appointment.",
			Audience: AudiencePatient,
		},
		{
			ID:       PatientCompleted,
			Name:     "Appointment Completed",
			Title:    "Consultation complete",
			Body:     "Your appointment with {{name}} is complete.",
			Audience: AudiencePatient,
		},
		{
			ID:       PatientCallStarted,
			Name:     "Call Started",
			Title:    "Incoming Video Call",
			Body:     "Dr. {{name}} has started the video call.",
			Audience: AudiencePatient,
		},
		{
			ID:       PatientCanceled,
			Name:     "Appointment Canceled",
			Title:    "Appointment canceled",
			Body:     "Your appointment with {{name}} was canceled.",
			Audience: AudiencePatient,
		},
		{
			ID:       DoctorNewRequest,
			Name:     "New Appointment Request",
			Title:    "New appointment request",
			Body:     "{{name}} requested an appointment on {{date}}.",
			Audience: AudienceDoctor,
		},
		{
			ID:       DoctorCanceled,
			Name:     "Appointment Canceled By Patient",
			Title:    "Appointment canceled",
			Body:     "{{name}} canceled the appointment on {{date}}.",
			Audience: AudienceDoctor,
		},
		{
			ID:    AppointmentReminder,
			Name:  "Appointment Reminder",
			Title: "Upcoming appointment",
			Body:  "Your appointment with {{name}} starts at {{time}}.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// StatusTemplateID returns the id of the template for a status change as seen by audience.
func StatusTemplateID(audience Audience, status string) string {
	return fmt.Sprintf("%s.appointment.%s", audience, status)
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Has reports whether a template is registered.
func (e *TemplateEngine) Has(templateID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[templateID]
	return ok
}

// IDs returns the registered template ids in sorted order.
func (e *TemplateEngine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.templates))
	for id := range e.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title = t.Title
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}
