package booking

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so the transport layer can map them to a response.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
)

// Error is a rejected operation. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first *Error in err's chain, or "" for
// infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrDoctorNotFound  = &Error{Kind: KindNotFound, Message: "doctor not found"}
	ErrPatientNotFound = &Error{Kind: KindNotFound, Message: "patient not found"}
	ErrBookingNotFound = &Error{Kind: KindNotFound, Message: "booking not found"}

	ErrMissingBookingFields = &Error{Kind: KindInvalidInput, Message: "missing required booking information (doctorId, appointmentDate, appointmentTime)"}
	ErrInvalidDateTime      = &Error{Kind: KindInvalidInput, Message: "invalid date or time format provided"}
	ErrInvalidDate          = &Error{Kind: KindInvalidInput, Message: "invalid date format, please use YYYY-MM-DD"}
	ErrInvalidStatus        = &Error{Kind: KindInvalidInput, Message: "invalid status, must be one of: pending, confirmed, cancelled, completed"}
	ErrNothingToUpdate      = &Error{Kind: KindInvalidInput, Message: "nothing to update, provide prescription or doctorNotes"}
	ErrNegativeTicketPrice  = &Error{Kind: KindInvalidInput, Message: "ticket price cannot be negative"}
	ErrRatingRequired       = &Error{Kind: KindInvalidInput, Message: "rating is required"}
	ErrInvalidRating        = &Error{Kind: KindInvalidInput, Message: "rating must be between 1 and 5"}

	ErrSlotAlreadyBooked = &Error{Kind: KindConflict, Message: "this time slot is already booked"}
	ErrSlotBeingBooked   = &Error{Kind: KindConflict, Message: "this time slot is currently being booked, please retry"}
	ErrConcurrentUpdate  = &Error{Kind: KindConflict, Message: "booking was modified concurrently, please retry"}
	ErrAlreadyReviewed   = &Error{Kind: KindConflict, Message: "you have already reviewed this doctor"}

	ErrNotBookingOwner     = &Error{Kind: KindForbidden, Message: "you are not authorized to update this booking"}
	ErrNotAssignedDoctor   = &Error{Kind: KindForbidden, Message: "this booking is not assigned to you"}
	ErrPatientCancelOnly   = &Error{Kind: KindForbidden, Message: "you can only cancel your bookings"}
	ErrNotesRoleForbidden  = &Error{Kind: KindForbidden, Message: "you are not authorized to perform this action"}
	ErrNotesNotYourBooking = &Error{Kind: KindForbidden, Message: "you can only update your own appointments"}
	ErrBookingAccessDenied = &Error{Kind: KindForbidden, Message: "you are not allowed to view this booking"}
	ErrProfileNotYours     = &Error{Kind: KindForbidden, Message: "you are not authorized to update this profile"}
	ErrUnknownRole         = &Error{Kind: KindForbidden, Message: "update not permitted for your role"}
	ErrReviewRoleForbidden = &Error{Kind: KindForbidden, Message: "only patients can review doctors"}
)
