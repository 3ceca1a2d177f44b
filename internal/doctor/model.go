package doctor

import (
	"time"

	"github.com/google/uuid"
)

type Specialty string

const (
	GeneralPhysician Specialty = "General Physician"
	Cardiologist     Specialty = "Cardiologist"
	Dermatologist    Specialty = "Dermatologist"
	Pediatrician     Specialty = "Pediatrician"
	Psychiatrist     Specialty = "Psychiatrist"
	Orthopedic       Specialty = "Orthopedic"
)

var Specialties = []Specialty{
	GeneralPhysician,
	Cardiologist,
	Dermatologist,
	Pediatrician,
	Psychiatrist,
	Orthopedic,
}

func (s Specialty) Valid() bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

const (
	DefaultRating = 4.5
	DefaultImage  = "👨‍⚕️"
)

type Availability struct {
	Day   string   `json:"day"`
	Slots []string `json:"slots"`
}

type Doctor struct {
	ID            uuid.UUID
	Name          string
	Specialty     Specialty
	Rating        float64
	Experience    string
	Consultations int
	Image         string
	Fee           float64
	Languages     []string
	Availability  []Availability
	IsAvailable   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Specialty string
	// Search is a case-insensitive substring of the name or specialty.
	Search string
}
