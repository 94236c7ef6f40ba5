package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// errorCodes gives the well-known domain errors a stable machine-readable code.
var errorCodes = map[*booking.Error]string{
	booking.ErrDoctorNotFound:       "doctor_not_found",
	booking.ErrPatientNotFound:      "patient_not_found",
	booking.ErrBookingNotFound:      "booking_not_found",
	booking.ErrMissingBookingFields: "missing_booking_fields",
	booking.ErrInvalidDateTime:      "invalid_date_time",
	booking.ErrInvalidDate:          "invalid_date",
	booking.ErrInvalidStatus:        "invalid_status",
	booking.ErrNothingToUpdate:      "nothing_to_update",
	booking.ErrSlotAlreadyBooked:    "slot_already_booked",
	booking.ErrSlotBeingBooked:      "slot_being_booked",
	booking.ErrConcurrentUpdate:     "concurrent_update",
	booking.ErrRatingRequired:       "rating_required",
	booking.ErrInvalidRating:        "invalid_rating",
	booking.ErrAlreadyReviewed:      "already_reviewed",
}

// statusForKind maps error kinds to HTTP statuses. Conflicts are reported as
// 400 to match the public booking API.
func statusForKind(k booking.Kind) int {
	switch k {
	case booking.KindInvalidInput, booking.KindConflict:
		return http.StatusBadRequest
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *booking.Error
	if errors.As(err, &de) {
		code, ok := errorCodes[de]
		if !ok {
			code = string(de.Kind)
		}
		writeError(w, statusForKind(de.Kind), code, de.Message)
		return
	}

	LoggerFrom(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please try again later")
}
