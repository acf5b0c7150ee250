package notification

import (
	"sync"
	"testing"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:    "test-tpl",
		Name:  "Test Template",
		Title: "Hello {{name}}",
		Body:  "Dear {{name}}, your code is {{code}}.",
	})

	title, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Hello Alice" {
		t.Errorf("title = %q, want %q", title, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, err := eng.Render("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_StatusMessages(t *testing.T) {
	eng := NewTemplateEngine()
	tests := []struct {
		audience Audience
		status   string
		want     string
	}{
		{AudiencePatient, "confirmed", "Meredith Grey confirmed your appointment."},
		{AudiencePatient, "declined", "Meredith Grey declined your appointment."},
		{AudiencePatient, "completed", "Your appointment with Meredith Grey is complete."},
		{AudiencePatient, "in-progress", "Dr. Meredith Grey has started the video call."},
		{AudienceDoctor, "pending", "Meredith Grey requested an appointment on 2025-03-01."},
	}
	for _, tt := range tests {
		id := StatusTemplateID(tt.audience, tt.status)
		_, body, err := eng.Render(id, map[string]string{"name": "Meredith Grey", "date": "2025-03-01"})
		if err != nil {
			t.Errorf("Render(%q) error: %v", id, err)
			continue
		}
		if body != tt.want {
			t.Errorf("Render(%q) = %q, want %q", id, body, tt.want)
		}
	}
}

func TestStatusTemplateID_MatchesConstants(t *testing.T) {
	if got := StatusTemplateID(AudiencePatient, "confirmed"); got != PatientConfirmed {
		t.Errorf("got %q, want %q", got, PatientConfirmed)
	}
	if got := StatusTemplateID(AudienceDoctor, "pending"); got != DoctorNewRequest {
		t.Errorf("got %q, want %q", got, DoctorNewRequest)
	}
}

func TestTemplateEngine_Has(t *testing.T) {
	eng := NewTemplateEngine()
	if !eng.Has(PatientDeclined) {
		t.Error("expected built-in declined template")
	}
	if eng.Has(StatusTemplateID(AudienceDoctor, "confirmed")) {
		t.Error("doctors are not notified of their own confirmations")
	}
	if len(eng.IDs()) != 8 {
		t.Errorf("expected 8 built-in templates, got %d", len(eng.IDs()))
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:    "partial-tpl",
		Name:  "Partial",
		Title: "Hi {{name}}",
		Body:  "Your code is {{code}} and token is {{token}}.",
	})

	title, body, err := eng.Render("partial-tpl", map[string]string{
		"name": "Bob",
		"code": "5678",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Hi Bob" {
		t.Errorf("title = %q, want %q", title, "Hi Bob")
	}
	// unreplaced keys left as-is
	expected := "Your code is 5678 and token is {{token}}."
	if body != expected {
		t.Errorf("body = %q, want %q", body, expected)
	}
}

func TestTemplateEngine_ConcurrentRender(t *testing.T) {
	eng := NewTemplateEngine()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				eng.RegisterTemplate(Template{ID: "dyn", Body: "x"})
				return
			}
			_, _, _ = eng.Render(PatientConfirmed, map[string]string{"name": "n"})
		}(i)
	}
	wg.Wait()
	if !eng.Has("dyn") {
		t.Error("expected dynamically registered template")
	}
}
