package profile

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("profile not found")
	ErrValidation = errors.New("invalid profile")
)

// Doctor is keyed by the identity subject of the doctor.
type Doctor struct {
	ID        string    `json:"id" bson:"_id"`
	FullName  string    `json:"fullName" bson:"fullName" validate:"required,max=200"`
	Email     string    `json:"email" bson:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone" bson:"phone" validate:"max=40"`
	Specialty string    `json:"specialty" bson:"specialty" validate:"max=120"`
	Bio       string    `json:"bio" bson:"bio" validate:"max=4000"`
	Fee       *float64  `json:"fee,omitempty" bson:"fee,omitempty" validate:"omitempty,gte=0"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Patient is keyed by the identity subject of the patient.
type Patient struct {
	ID          string     `json:"id" bson:"_id"`
	FullName    string     `json:"fullName" bson:"fullName" validate:"required,max=200"`
	Email       string     `json:"email" bson:"email" validate:"omitempty,email"`
	Phone       string     `json:"phone" bson:"phone" validate:"max=40"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender" bson:"gender" validate:"omitempty,oneof=male female other unknown"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}
