package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

func listDoctorsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context(), r.URL.Query().Get("query"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[booking.Doctor]{Count: len(doctors), Data: doctors})
	}
}

func getDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		doctor, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctor)
	}
}

func updateDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req UpdateDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		actor, _ := ActorFrom(r.Context())
		doctor, err := svc.UpdateDoctorProfile(r.Context(), actor, id, req.toUpdate())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctor)
	}
}

func availableSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
			return
		}

		availability, err := svc.AvailableSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, availability)
	}
}

func doctorAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		bookings, err := svc.ListDoctorBookings(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[booking.Booking]{Count: len(bookings), Data: bookings})
	}
}

func patientAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		bookings, err := svc.ListPatientBookings(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[booking.Booking]{Count: len(bookings), Data: bookings})
	}
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		// an empty doctorId falls through to the service's missing-fields check
		var doctorID uuid.UUID
		if strings.TrimSpace(req.DoctorID) != "" {
			id, err := uuid.Parse(strings.TrimSpace(req.DoctorID))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
				return
			}
			doctorID = id
		}

		actor, _ := ActorFrom(r.Context())
		created, err := svc.CreateBooking(r.Context(), booking.CreateBookingInput{
			DoctorID:  doctorID,
			PatientID: actor.UserID,
			Date:      req.AppointmentDate,
			Time:      req.AppointmentTime,
			Comment:   req.Comment,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		b, err := svc.GetBooking(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func updateStatusHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, _ := ActorFrom(r.Context())
		updated, err := svc.UpdateStatus(r.Context(), id, actor, strings.TrimSpace(req.Status))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func updateNotesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, _ := ActorFrom(r.Context())
		updated, err := svc.SetPrescriptionOrNotes(r.Context(), id, actor, req.Prescription, req.DoctorNotes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func doctorProfileHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		profile, err := svc.GetDoctorProfile(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func listReviewsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		reviews, err := svc.ListDoctorReviews(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[booking.Review]{Count: len(reviews), Data: reviews})
	}
}

func createReviewHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req CreateReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, _ := ActorFrom(r.Context())
		review, err := svc.CreateReview(r.Context(), actor, booking.CreateReviewInput{
			DoctorID:   id,
			Rating:     req.Rating,
			ReviewText: req.ReviewText,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
