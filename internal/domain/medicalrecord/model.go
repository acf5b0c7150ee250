package medicalrecord

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("medical record not found")
	ErrValidation = errors.New("invalid medical record")
)

// DocTypePreConsultation is the document type of files attached at booking.
const DocTypePreConsultation = "Pre-consultation Document"

// Record references an uploaded document. Records are append-only.
type Record struct {
	ID            string    `json:"id" bson:"_id"`
	UserID        string    `json:"userId" bson:"userId"`
	DocumentType  string    `json:"documentType" bson:"documentType"`
	FileName      string    `json:"fileName" bson:"fileName"`
	FileURL       string    `json:"fileUrl" bson:"fileUrl"`
	AppointmentID string    `json:"appointmentId,omitempty" bson:"appointmentId,omitempty"`
	UploadedBy    string    `json:"uploadedBy,omitempty" bson:"uploadedBy,omitempty"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
}
