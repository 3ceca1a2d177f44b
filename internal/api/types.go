package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/doctor"
)

// Requests

type SignupRequest struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type BookConsultationRequest struct {
	UserID           string `json:"userId"`
	DoctorID         string `json:"doctorId"`
	PatientName      string `json:"patientName"`
	PatientEmail     string `json:"patientEmail"`
	PatientPhone     string `json:"patientPhone"`
	AppointmentDate  string `json:"appointmentDate"`
	AppointmentTime  string `json:"appointmentTime"`
	ConsultationType string `json:"consultationType"`
	Symptoms         string `json:"symptoms"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type SignupResponse struct {
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
}

type LoginResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	UserID  uuid.UUID       `json:"userId"`
	User    auth.PublicUser `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func listEnvelope[T any](items []T) Envelope {
	n := len(items)
	return Envelope{Success: true, Count: &n, Data: items}
}

type DoctorResponse struct {
	ID            uuid.UUID             `json:"id"`
	Name          string                `json:"name"`
	Specialty     string                `json:"specialty"`
	Rating        float64               `json:"rating"`
	Experience    string                `json:"experience"`
	Consultations int                   `json:"consultations"`
	Image         string                `json:"image"`
	Fee           float64               `json:"fee"`
	Languages     []string              `json:"languages"`
	Availability  []doctor.Availability `json:"availability"`
	IsAvailable   bool                  `json:"isAvailable"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func toDoctorResponse(d doctor.Doctor) DoctorResponse {
	languages := d.Languages
	if languages == nil {
		languages = []string{}
	}
	availability := d.Availability
	if availability == nil {
		availability = []doctor.Availability{}
	}

	return DoctorResponse{
		ID:            d.ID,
		Name:          d.Name,
		Specialty:     string(d.Specialty),
		Rating:        d.Rating,
		Experience:    d.Experience,
		Consultations: d.Consultations,
		Image:         d.Image,
		Fee:           d.Fee,
		Languages:     languages,
		Availability:  availability,
		IsAvailable:   d.IsAvailable,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type DoctorSummaryResponse struct {
	ID        uuid.UUID `json:"_id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Image     string    `json:"image,omitempty"`
	Rating    *float64  `json:"rating,omitempty"`
	Fee       *float64  `json:"fee,omitempty"`
}

type UserSummaryResponse struct {
	ID          uuid.UUID `json:"_id"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
}

// Ref is a reference field. It encodes as the bare id, or as the referenced
// object when one is attached, which is the shape the web client reads.
type Ref[T any] struct {
	ID     uuid.UUID
	Object *T
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return json.Marshal(r.Object)
	}
	return json.Marshal(r.ID)
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var head struct {
			ID uuid.UUID `json:"_id"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return err
		}
		obj := new(T)
		if err := json.Unmarshal(data, obj); err != nil {
			return err
		}
		r.ID, r.Object = head.ID, obj
		return nil
	}

	r.Object = nil
	return json.Unmarshal(data, &r.ID)
}

// ConsultationResponse carries both "_id" and "id"; the web client keys on
// "_id".
type ConsultationResponse struct {
	RecordID         uuid.UUID                  `json:"_id"`
	ID               uuid.UUID                  `json:"id"`
	UserID           Ref[UserSummaryResponse]   `json:"userId"`
	DoctorID         Ref[DoctorSummaryResponse] `json:"doctorId"`
	PatientName      string                     `json:"patientName"`
	PatientEmail     string                     `json:"patientEmail"`
	PatientPhone     string                     `json:"patientPhone"`
	AppointmentDate  time.Time                  `json:"appointmentDate"`
	AppointmentTime  string                     `json:"appointmentTime"`
	ConsultationType string                     `json:"consultationType"`
	Symptoms         string                     `json:"symptoms"`
	Status           string                     `json:"status"`
	Fee              float64                    `json:"fee"`
	PaymentStatus    string                     `json:"paymentStatus"`
	Notes            string                     `json:"notes"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

func toConsultationResponse(c consultation.Consultation) ConsultationResponse {
	return ConsultationResponse{
		RecordID:         c.ID,
		ID:               c.ID,
		UserID:           Ref[UserSummaryResponse]{ID: c.UserID},
		DoctorID:         Ref[DoctorSummaryResponse]{ID: c.DoctorID},
		PatientName:      c.PatientName,
		PatientEmail:     c.PatientEmail,
		PatientPhone:     c.PatientPhone,
		AppointmentDate:  c.AppointmentDate,
		AppointmentTime:  c.AppointmentTime,
		ConsultationType: string(c.ConsultationType),
		Symptoms:         c.Symptoms,
		Status:           string(c.Status),
		Fee:              c.Fee,
		PaymentStatus:    string(c.PaymentStatus),
		Notes:            c.Notes,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// view selects which counterpart fields a listing exposes.
type view int

const (
	viewForUser   view = iota // doctor name, specialty, image, rating
	viewForDoctor             // user full name, email, phone
	viewDetail                // both, doctor with fee
	viewAdmin                 // doctor name and specialty, user name and email
)

func toDetailResponse(d consultation.Detail, v view) ConsultationResponse {
	resp := toConsultationResponse(d.Consultation)

	if d.Doctor != nil && v != viewForDoctor {
		doc := &DoctorSummaryResponse{
			ID:        d.Doctor.ID,
			Name:      d.Doctor.Name,
			Specialty: d.Doctor.Specialty,
		}
		if v == viewForUser || v == viewDetail {
			rating := d.Doctor.Rating
			doc.Image = d.Doctor.Image
			doc.Rating = &rating
		}
		if v == viewDetail {
			fee := d.Doctor.Fee
			doc.Fee = &fee
		}
		resp.DoctorID.Object = doc
	}

	if d.User != nil && v != viewForUser {
		user := &UserSummaryResponse{
			ID:       d.User.ID,
			FullName: d.User.FullName,
			Email:    d.User.Email,
		}
		if v != viewAdmin {
			user.PhoneNumber = d.User.PhoneNumber
		}
		resp.UserID.Object = user
	}

	return resp
}

func toDetailResponses(list []consultation.Detail, v view) []ConsultationResponse {
	out := make([]ConsultationResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDetailResponse(d, v))
	}
	return out
}
