package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid only checks membership. Any status may follow any other.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Type string

const (
	TypeVideo Type = "Video Consultation"
	TypeAudio Type = "Audio Call"
	TypeChat  Type = "Chat Consultation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeVideo, TypeAudio, TypeChat:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

const MaxSymptomsLength = 500

type Consultation struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	DoctorID         uuid.UUID
	PatientName      string
	PatientEmail     string
	PatientPhone     string
	AppointmentDate  time.Time
	AppointmentTime  string
	ConsultationType Type
	Symptoms         string
	Status           Status
	// Fee is copied from the doctor when booking and never updated.
	Fee           float64
	PaymentStatus PaymentStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type DoctorSummary struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Image     string
	Rating    float64
	Fee       float64
}

type UserSummary struct {
	ID          uuid.UUID
	FullName    string
	Email       string
	PhoneNumber string
}

// Detail is a consultation with its counterparts attached. Either summary
// may be nil depending on the listing.
type Detail struct {
	Consultation
	Doctor *DoctorSummary
	User   *UserSummary
}

// BookRequest carries the raw booking form. Ids and the date are parsed by
// the service so that every input error surfaces the same way.
type BookRequest struct {
	UserID           string `validate:"required"`
	DoctorID         string `validate:"required"`
	PatientName      string `validate:"required"`
	PatientEmail     string `validate:"required"`
	PatientPhone     string `validate:"required"`
	AppointmentDate  string `validate:"required"`
	AppointmentTime  string `validate:"required"`
	ConsultationType string
	Symptoms         string

	// IdempotencyKey is optional. A repeated key returns the first booking.
	IdempotencyKey string
}

type BookResult struct {
	Consultation Consultation
	// Replayed is true when the result comes from an earlier request with the
	// same idempotency key.
	Replayed bool
}

type ListFilter struct {
	Status Status
	From   *time.Time
	To     *time.Time
}
