package doctor

import "github.com/google/uuid"

// SampleDoctors is the directory the demo deployment starts with. The
// consultation counters carry the history of the earlier deployment.
func SampleDoctors() []Doctor {
	return []Doctor{
		sample("Dr. Sarah Johnson", Cardiologist, 4.9, "15 years", 2340, "👩‍⚕️", 50, "English", "Spanish"),
		sample("Dr. Michael Chen", GeneralPhysician, 4.8, "12 years", 1890, "👨‍⚕️", 40, "English", "Mandarin"),
		sample("Dr. Priya Patel", Dermatologist, 4.9, "10 years", 1560, "👩‍⚕️", 45, "English", "Hindi"),
		sample("Dr. James Wilson", Pediatrician, 4.7, "18 years", 3120, "👨‍⚕️", 55, "English"),
		sample("Dr. Emily Rodriguez", Psychiatrist, 4.8, "14 years", 2100, "👩‍⚕️", 60, "English", "Spanish"),
		sample("Dr. Robert Kumar", Orthopedic, 4.9, "20 years", 2890, "👨‍⚕️", 65, "English", "Hindi"),
		sample("Dr. Lisa Anderson", GeneralPhysician, 4.6, "8 years", 1200, "👩‍⚕️", 35, "English"),
		sample("Dr. Ahmed Hassan", Cardiologist, 4.8, "16 years", 2500, "👨‍⚕️", 55, "English", "Arabic"),
	}
}

func sample(
	name string,
	specialty Specialty,
	rating float64,
	experience string,
	consultations int,
	image string,
	fee float64,
	languages ...string,
) Doctor {
	return Doctor{
		ID:            uuid.New(),
		Name:          name,
		Specialty:     specialty,
		Rating:        rating,
		Experience:    experience,
		Consultations: consultations,
		Image:         image,
		Fee:           fee,
		Languages:     languages,
		Availability:  []Availability{},
		IsAvailable:   true,
	}
}
