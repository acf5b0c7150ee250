package medicalrecord

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/blobstore"
)

func newTestHandler() (*Handler, *Service) {
	svc := NewService(NewMemoryRepo(), blobstore.NewMemoryStore("http://localhost/files"))
	return NewHandler(svc), svc
}

func asUser(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID, "", []string{role}))
}

func TestHandler_List(t *testing.T) {
	h, svc := newTestHandler()
	_ = svc.Append(context.Background(), &Record{UserID: "pat-1", DocumentType: "Lab Report", FileName: "a.pdf", FileURL: "u"})
	_ = svc.Append(context.Background(), &Record{UserID: "pat-1", DocumentType: "Prescription", FileName: "b.pdf", FileURL: "u"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/users/pat-1/records?documentType=Prescription", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("pat-1")

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data  []Record `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].FileName != "b.pdf" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestRequireOwnerOrDoctor(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		role    string
		wantErr bool
	}{
		{"owner", "pat-1", auth.RolePatient, false},
		{"doctor", "doc-1", auth.RoleDoctor, false},
		{"other patient", "pat-2", auth.RolePatient, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), tt.userID, tt.role)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues("pat-1")
			err := requireOwnerOrDoctor(func(c echo.Context) error { return nil })(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandler_Upload(t *testing.T) {
	h, svc := newTestHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("documentType", "Lab Report")
	part, _ := mw.CreateFormFile("file", "cbc.pdf")
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = mw.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/users/pat-1/records", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req = asUser(req, "pat-1", auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("pat-1")

	if err := h.Upload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	items, total, _ := svc.ListByUser(context.Background(), "pat-1", "", 10, 0)
	if total != 1 || items[0].DocumentType != "Lab Report" || items[0].UploadedBy != "pat-1" {
		t.Errorf("unexpected records: %+v", items)
	}
}

func TestHandler_Upload_MissingFile(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/users/pat-1/records", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("pat-1")

	err := h.Upload(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
