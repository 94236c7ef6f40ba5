package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/auth"
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
)

type testEnv struct {
	handler http.Handler
	repo    *booking.MemoryRepository
	svc     *booking.Service
	tokens  *auth.Manager
	doctor  booking.Doctor
	patient booking.Patient
}

func newTestEnv(t *testing.T, deps ...Dependency) *testEnv {
	t.Helper()

	repo := booking.NewMemoryRepository()
	spec := "Cardiology"
	doctor := repo.AddDoctor(booking.Doctor{
		Name:           "Meredith Grey",
		Email:          "grey@example.com",
		Specialization: &spec,
		TicketPrice:    50,
		TimeSlots: []booking.WeeklyRule{{
			Day:                 time.Monday,
			Start:               booking.TimeOfDay{Hour: 9},
			End:                 booking.TimeOfDay{Hour: 10},
			SlotDurationMinutes: 30,
		}},
	})
	patient := repo.AddPatient(booking.Patient{Name: "Sam Patient"})

	svc := booking.NewService(repo, nil, nil, zap.NewNop(), config.Config{})
	t.Cleanup(svc.Wait)

	tokens := auth.NewManager("test-secret")
	return &testEnv{
		handler: NewRouter(RouterConfig{
			Service: svc,
			Tokens:  tokens,
			Logger:  zap.NewNop(),
			Health:  deps,
			Env:     "test",
		}),
		repo:    repo,
		svc:     svc,
		tokens:  tokens,
		doctor:  doctor,
		patient: patient,
	}
}

func (e *testEnv) token(t *testing.T, id uuid.UUID, role booking.Role) string {
	t.Helper()
	tok, err := e.tokens.Issue(booking.Actor{UserID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) book(t *testing.T, tok, clock string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodPost, "/api/v1/bookings", tok, CreateBookingRequest{
		DoctorID:        e.doctor.ID.String(),
		AppointmentDate: "2024-05-06",
		AppointmentTime: clock,
	})
}

func TestAvailableSlotsAndBooking(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	slotsPath := "/api/v1/doctors/" + env.doctor.ID.String() + "/available-slots?date=2024-05-06"

	rec := env.do(t, http.MethodGet, slotsPath, patientTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[booking.Availability](t, rec)
	assert.Equal(t, []string{"09:00", "09:30"}, avail.AvailableSlots)
	assert.Equal(t, 50.0, avail.TicketPrice)

	rec = env.book(t, patientTok, "09:30")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusConfirmed, created.Status)
	assert.Equal(t, env.patient.ID, created.PatientID)

	rec = env.do(t, http.MethodGet, slotsPath, patientTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"09:00"}, decode[booking.Availability](t, rec).AvailableSlots)

	rec = env.book(t, patientTok, "09:30")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "slot_already_booked", errResp.Error)
	assert.Contains(t, errResp.Details, "already booked")
}

func TestAvailableSlots_Errors(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.patient.ID, booking.RolePatient)

	rec := env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID.String()+"/available-slots", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID.String()+"/available-slots?date=06-05-2024", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/"+uuid.NewString()+"/available-slots?date=2024-05-06", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID.String()+"/available-slots?date=2024-05-06", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)

	rec := env.do(t, http.MethodPost, "/api/v1/bookings", patientTok, CreateBookingRequest{AppointmentDate: "2024-05-06", AppointmentTime: "09:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_booking_fields", decode[ErrorResponse](t, rec).Error)

	rec = env.book(t, patientTok, "25:99")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_time", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/v1/bookings", patientTok, CreateBookingRequest{
		DoctorID: uuid.NewString(), AppointmentDate: "2024-05-06", AppointmentTime: "09:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)
	rec = env.book(t, doctorTok, "09:00")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.book(t, "garbage", "09:00")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)

	created := decode[booking.Booking](t, env.book(t, patientTok, "09:00"))
	path := "/api/v1/bookings/" + created.ID.String() + "/status"

	rec := env.do(t, http.MethodPut, path, patientTok, UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you can only cancel your bookings", decode[ErrorResponse](t, rec).Details)

	rec = env.do(t, http.MethodPut, path, doctorTok, UpdateStatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPut, path, env.token(t, uuid.New(), booking.RoleDoctor), UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, path, doctorTok, UpdateStatusRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, booking.StatusCompleted, decode[booking.Booking](t, rec).Status)

	rec = env.do(t, http.MethodPut, path, patientTok, UpdateStatusRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/bookings/"+uuid.NewString()+"/status", doctorTok, UpdateStatusRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrescription(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)

	created := decode[booking.Booking](t, env.book(t, patientTok, "09:00"))
	path := "/api/v1/bookings/" + created.ID.String() + "/prescription"
	rx := "Amoxicillin 500mg"

	rec := env.do(t, http.MethodPut, path, patientTok, UpdateNotesRequest{Prescription: &rx})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, path, doctorTok, UpdateNotesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "nothing_to_update", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPut, path, doctorTok, UpdateNotesRequest{Prescription: &rx})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[booking.Booking](t, rec)
	require.NotNil(t, updated.Prescription)
	assert.Equal(t, rx, *updated.Prescription)
	assert.Equal(t, booking.StatusConfirmed, updated.Status)
}

func TestGetBookingAndListings(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)

	first := decode[booking.Booking](t, env.book(t, patientTok, "09:00"))
	second := decode[booking.Booking](t, env.book(t, patientTok, "09:30"))

	rec := env.do(t, http.MethodGet, "/api/v1/bookings/"+first.ID.String(), env.token(t, uuid.New(), booking.RolePatient), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/bookings/"+first.ID.String(), env.token(t, uuid.New(), booking.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/bookings/"+first.ID.String()+"/status", patientTok, UpdateStatusRequest{Status: "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users/me/appointments", patientTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[ListResponse[booking.Booking]](t, rec)
	require.Equal(t, 1, mine.Count)
	assert.Equal(t, second.ID, mine.Data[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/me/appointments", doctorTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schedule := decode[ListResponse[booking.Booking]](t, rec)
	require.Equal(t, 2, schedule.Count)
	assert.Equal(t, first.ID, schedule.Data[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/users/me/appointments", doctorTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDoctorsDiscoveryAndProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/doctors?query=cardio", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse[booking.Doctor]](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors?query=dermatology", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListResponse[booking.Doctor]](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	path := "/api/v1/doctors/" + env.doctor.ID.String()
	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)

	body := map[string]any{
		"ticketPrice": 80,
		"timeSlots": []map[string]any{
			{"day": "Tuesday", "startTime": "14:00", "endTime": "15:00"},
		},
	}
	rec = env.do(t, http.MethodPut, path, doctorTok, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[booking.Doctor](t, rec)
	assert.Equal(t, 80.0, updated.TicketPrice)
	require.Len(t, updated.TimeSlots, 1)
	assert.Equal(t, booking.DefaultSlotDurationMinutes, updated.TimeSlots[0].SlotDurationMinutes)

	rec = env.do(t, http.MethodPut, path, doctorTok, map[string]any{
		"timeSlots": []map[string]any{{"day": "Tuesday", "startTime": "15:00", "endTime": "14:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, path, env.token(t, uuid.New(), booking.RoleDoctor), map[string]any{"ticketPrice": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, path, env.token(t, env.patient.ID, booking.RolePatient), map[string]any{"ticketPrice": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviews(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	path := "/api/v1/doctors/" + env.doctor.ID.String() + "/reviews"
	rating := func(n int) *int { return &n }

	rec := env.do(t, http.MethodPost, path, "", CreateReviewRequest{Rating: rating(5)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, path, env.token(t, env.doctor.ID, booking.RoleDoctor), CreateReviewRequest{Rating: rating(5)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, path, patientTok, CreateReviewRequest{ReviewText: "no rating"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rating_required", decode[ErrorResponse](t, rec).Error)

	for _, bad := range []int{0, 6} {
		rec = env.do(t, http.MethodPost, path, patientTok, CreateReviewRequest{Rating: rating(bad)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_rating", decode[ErrorResponse](t, rec).Error)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/doctors/"+uuid.NewString()+"/reviews", patientTok, CreateReviewRequest{Rating: rating(4)})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, path, patientTok, CreateReviewRequest{Rating: rating(4), ReviewText: "Kind and thorough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[booking.Review](t, rec)
	assert.Equal(t, 4, created.Rating)
	assert.Equal(t, env.patient.ID, created.PatientID)

	rec = env.do(t, http.MethodPost, path, patientTok, CreateReviewRequest{Rating: rating(2)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "already_reviewed", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse[booking.Review]](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Data[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doctor := decode[booking.Doctor](t, rec)
	assert.Equal(t, 4.0, doctor.AverageRating)
	assert.Equal(t, 1, doctor.TotalRating)
}

func TestDoctorProfileMe(t *testing.T) {
	env := newTestEnv(t)
	patientTok := env.token(t, env.patient.ID, booking.RolePatient)
	doctorTok := env.token(t, env.doctor.ID, booking.RoleDoctor)

	created := decode[booking.Booking](t, env.book(t, patientTok, "09:00"))

	rec := env.do(t, http.MethodGet, "/api/v1/doctors/profile/me", doctorTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode[booking.DoctorProfile](t, rec)
	assert.Equal(t, env.doctor.ID, profile.ID)
	require.Len(t, profile.Appointments, 1)
	assert.Equal(t, created.ID, profile.Appointments[0].ID)
	assert.Empty(t, profile.Reviews)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/profile/me", patientTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/doctors/profile/me", env.token(t, uuid.New(), booking.RoleDoctor), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t,
		Dependency{Name: "store", Critical: true, Check: func(context.Context) error { return nil }},
		Dependency{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, map[string]string{"store": "ok", "redis": "down"}, ready.Dependencies)

	failing := newTestEnv(t, Dependency{Name: "store", Critical: true, Check: func(context.Context) error { return errors.New("down") }})
	rec = failing.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
