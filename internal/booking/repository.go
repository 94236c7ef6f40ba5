package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NewBooking is the data needed to insert a booking.
type NewBooking struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentAt time.Time
	Status        Status
	Comment       *string
}

// DoctorUpdate carries the profile fields a doctor may change. Nil fields are left untouched.
type DoctorUpdate struct {
	Name           *string
	Phone          *string
	Specialization *string
	Bio            *string
	TicketPrice    *float64
	TimeSlots      []WeeklyRule
	ReplaceSlots   bool
}

// NewReview is the data needed to insert a review.
type NewReview struct {
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	Rating     int
	ReviewText string
}

// Repository contains all persistence interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, query string) ([]Doctor, error)
	UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// For conflict checks
	FindActiveBooking(ctx context.Context, doctorID uuid.UUID, at time.Time) (*Booking, error)
	ListActiveBookingsForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error)

	// InsertBooking must return ErrSlotAlreadyBooked when an active booking
	// already holds (DoctorID, AppointmentAt), atomically with the insert.
	InsertBooking(ctx context.Context, nb NewBooking) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateBookingStatus only applies when the stored status still equals from;
	// otherwise it returns ErrBookingNotFound.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)
	UpdateBookingNotes(ctx context.Context, id uuid.UUID, prescription, doctorNotes *string) (*Booking, error)

	ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, excludeCancelled bool) ([]Booking, error)
	ListBookingsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Booking, error)
	ListActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error)

	// InsertReview must return ErrAlreadyReviewed when the patient already
	// reviewed the doctor, and refresh the doctor's AverageRating and
	// TotalRating in the same step.
	InsertReview(ctx context.Context, nr NewReview) (*Review, error)
	// ListReviewsByDoctor returns newest first.
	ListReviewsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Review, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
