package api

import (
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

type CreateBookingRequest struct {
	DoctorID        string  `json:"doctorId"`
	AppointmentDate string  `json:"appointmentDate"`
	AppointmentTime string  `json:"appointmentTime"`
	Comment         *string `json:"comment"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CreateReviewRequest struct {
	Rating     *int   `json:"rating"`
	ReviewText string `json:"reviewText"`
}

type UpdateNotesRequest struct {
	Prescription *string `json:"prescription"`
	DoctorNotes  *string `json:"doctorNotes"`
}

// UpdateDoctorRequest is a partial profile update. A present timeSlots array,
// even an empty one, replaces the doctor's weekly rules.
type UpdateDoctorRequest struct {
	Name           *string               `json:"name"`
	Phone          *string               `json:"phone"`
	Specialization *string               `json:"specialization"`
	Bio            *string               `json:"bio"`
	TicketPrice    *float64              `json:"ticketPrice"`
	TimeSlots      *[]booking.WeeklyRule `json:"timeSlots"`
}

func (req UpdateDoctorRequest) toUpdate() booking.DoctorUpdate {
	upd := booking.DoctorUpdate{
		Name:           req.Name,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		Bio:            req.Bio,
		TicketPrice:    req.TicketPrice,
	}
	if req.TimeSlots != nil {
		upd.ReplaceSlots = true
		upd.TimeSlots = *req.TimeSlots
	}
	return upd
}

type ListResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
