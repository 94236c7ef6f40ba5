package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/config"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingNotesUpdated  = "BOOKING_NOTES_UPDATED"
)

const (
	NotificationBookingCreated  = "booking.created"
	NotificationBookingReminder = "booking.reminder"
)

// Notification is the message fanned out to the patient and the doctor.
type Notification struct {
	Type          string    `json:"type"`
	BookingID     uuid.UUID `json:"bookingId"`
	DoctorID      uuid.UUID `json:"doctorId"`
	PatientID     uuid.UUID `json:"patientId"`
	DoctorName    string    `json:"doctorName"`
	DoctorEmail   string    `json:"doctorEmail"`
	PatientName   string    `json:"patientName"`
	PatientEmail  string    `json:"patientEmail,omitempty"`
	AppointmentAt time.Time `json:"appointmentDateTime"`
	Comment       string    `json:"comment,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Service struct {
	repo          Repository
	locker        redisclient.Locker
	notifier      Notifier
	logger        *zap.Logger
	notifyTimeout time.Duration
	now           func() time.Time
	wg            sync.WaitGroup
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, logger *zap.Logger, cfg config.Config) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		repo:          repo,
		locker:        locker,
		notifier:      notifier,
		logger:        logger,
		notifyTimeout: timeout,
		now:           time.Now,
	}
}

// Wait blocks until every in-flight notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// AvailableSlots returns the open start times of a doctor on date (YYYY-MM-DD).
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	from, to := DayBounds(day)
	bookings, err := s.repo.ListActiveBookingsForDoctor(ctx, doctor.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings for doctor: %w", err)
	}

	return &Availability{
		AvailableSlots: ComputeAvailableSlots(doctor.TimeSlots, day, bookings),
		TicketPrice:    doctor.TicketPrice,
	}, nil
}

type CreateBookingInput struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Comment   *string
}

// CreateBooking reserves a slot for a patient.
// A distributed lock serialises concurrent requests for the same doctor and
// start time; the store's unique index on active bookings is the final guard.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, error) {
	if in.DoctorID == uuid.Nil || strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return nil, ErrMissingBookingFields
	}

	at, err := ParseAppointmentTime(strings.TrimSpace(in.Date), strings.TrimSpace(in.Time))
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	var created *Booking

	slot := fmt.Sprintf("%s:%d", doctor.ID, at.Unix())
	err = s.locker.WithSlotLock(ctx, slot, func(lockCtx context.Context) error {
		existing, err := s.repo.FindActiveBooking(lockCtx, doctor.ID, at)
		if err != nil && !errors.Is(err, ErrBookingNotFound) {
			return fmt.Errorf("check active booking: %w", err)
		}
		if existing != nil {
			return ErrSlotAlreadyBooked
		}

		b, err := s.repo.InsertBooking(lockCtx, NewBooking{
			DoctorID:      doctor.ID,
			PatientID:     patient.ID,
			AppointmentAt: at,
			Status:        StatusConfirmed,
			Comment:       nonBlank(in.Comment),
		})
		if err != nil {
			return err
		}
		created = b

		s.logEvent(lockCtx, b.ID, EventBookingCreated, map[string]any{
			"doctor_id":      doctor.ID.String(),
			"patient_id":     patient.ID.String(),
			"appointment_at": at,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.dispatch(Notification{
		Type:          NotificationBookingCreated,
		BookingID:     created.ID,
		DoctorID:      doctor.ID,
		PatientID:     patient.ID,
		DoctorName:    doctor.Name,
		DoctorEmail:   doctor.Email,
		PatientName:   patient.Name,
		PatientEmail:  deref(patient.Email),
		AppointmentAt: created.AppointmentAt,
		Comment:       deref(created.Comment),
	})

	return created, nil
}

// UpdateStatus moves a booking to target on behalf of actor.
func (s *Service) UpdateStatus(ctx context.Context, bookingID uuid.UUID, actor Actor, target string) (*Booking, error) {
	status, ok := ParseStatus(target)
	if !ok {
		return nil, ErrInvalidStatus
	}

	b, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := authorizeStatusChange(b, actor, status); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, b.Status, status)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingStatusChanged, map[string]any{
		"from":     string(b.Status),
		"to":       string(status),
		"actor_id": actor.UserID.String(),
		"role":     string(actor.Role),
	})

	return updated, nil
}

// SetPrescriptionOrNotes records clinical notes on a booking. At least one
// field must carry text. Every supplied field overwrites, so an empty string
// clears it. Status is left alone.
func (s *Service) SetPrescriptionOrNotes(ctx context.Context, bookingID uuid.UUID, actor Actor, prescription, doctorNotes *string) (*Booking, error) {
	if nonBlank(prescription) == nil && nonBlank(doctorNotes) == nil {
		return nil, ErrNothingToUpdate
	}
	if actor.Role != RoleDoctor && actor.Role != RoleAdmin {
		return nil, ErrNotesRoleForbidden
	}

	b, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleDoctor && !sameUser(b.DoctorID, actor.UserID) {
		return nil, ErrNotesNotYourBooking
	}

	updated, err := s.repo.UpdateBookingNotes(ctx, b.ID, prescription, doctorNotes)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking notes: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingNotesUpdated, map[string]any{
		"prescription": prescription != nil,
		"doctor_notes": doctorNotes != nil,
		"actor_id":     actor.UserID.String(),
	})

	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID, actor Actor) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canView(b, actor) {
		return nil, ErrBookingAccessDenied
	}
	return b, nil
}

// ListPatientBookings returns the actor's non-cancelled bookings, newest first.
func (s *Service) ListPatientBookings(ctx context.Context, actor Actor) ([]Booking, error) {
	if actor.Role != RolePatient {
		return nil, forbidden("only patients have personal appointments")
	}
	bookings, err := s.repo.ListBookingsByPatient(ctx, actor.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("list bookings by patient: %w", err)
	}
	return bookings, nil
}

// ListDoctorBookings returns every booking assigned to the actor, oldest first.
func (s *Service) ListDoctorBookings(ctx context.Context, actor Actor) ([]Booking, error) {
	if actor.Role != RoleDoctor {
		return nil, forbidden("only doctors have an appointment schedule")
	}
	bookings, err := s.repo.ListBookingsByDoctor(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by doctor: %w", err)
	}
	return bookings, nil
}

func (s *Service) ListDoctors(ctx context.Context, query string) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

// UpdateDoctorProfile applies upd to a doctor. Doctors may only edit
// themselves; admins may edit anyone.
func (s *Service) UpdateDoctorProfile(ctx context.Context, actor Actor, doctorID uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	switch actor.Role {
	case RoleDoctor:
		if !sameUser(doctorID, actor.UserID) {
			return nil, ErrProfileNotYours
		}
	case RoleAdmin:
	default:
		return nil, ErrProfileNotYours
	}

	if upd.TicketPrice != nil && *upd.TicketPrice < 0 {
		return nil, ErrNegativeTicketPrice
	}
	if upd.ReplaceSlots {
		for i, rule := range upd.TimeSlots {
			if err := rule.Validate(); err != nil {
				return nil, invalidInput("timeSlots[%d]: %s", i, err.Error())
			}
		}
	}

	doctor, err := s.repo.UpdateDoctor(ctx, doctorID, upd)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	return doctor, nil
}

// GetDoctorProfile returns the signed-in doctor with their schedule and reviews.
func (s *Service) GetDoctorProfile(ctx context.Context, actor Actor) (*DoctorProfile, error) {
	if actor.Role != RoleDoctor {
		return nil, forbidden("only doctors have a profile dashboard")
	}
	doctor, err := s.repo.GetDoctorByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	appointments, err := s.repo.ListBookingsByDoctor(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by doctor: %w", err)
	}
	reviews, err := s.repo.ListReviewsByDoctor(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return &DoctorProfile{Doctor: *doctor, Appointments: appointments, Reviews: reviews}, nil
}

// CreateReviewInput is a patient's review. Rating is required, text is optional.
type CreateReviewInput struct {
	DoctorID   uuid.UUID
	Rating     *int
	ReviewText string
}

// CreateReview stores a patient's rating of a doctor and refreshes the
// doctor's rating summary.
func (s *Service) CreateReview(ctx context.Context, actor Actor, in CreateReviewInput) (*Review, error) {
	if actor.Role != RolePatient {
		return nil, ErrReviewRoleForbidden
	}
	if in.Rating == nil {
		return nil, ErrRatingRequired
	}
	if *in.Rating < MinRating || *in.Rating > MaxRating {
		return nil, ErrInvalidRating
	}

	if _, err := s.repo.GetDoctorByID(ctx, in.DoctorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, actor.UserID); err != nil {
		return nil, err
	}

	review, err := s.repo.InsertReview(ctx, NewReview{
		DoctorID:   in.DoctorID,
		PatientID:  actor.UserID,
		Rating:     *in.Rating,
		ReviewText: strings.TrimSpace(in.ReviewText),
	})
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	s.logger.Info("review created",
		zap.String("review_id", review.ID.String()),
		zap.String("doctor_id", review.DoctorID.String()),
		zap.Int("rating", review.Rating),
	)
	return review, nil
}

// ListDoctorReviews returns a doctor's reviews, newest first.
func (s *Service) ListDoctorReviews(ctx context.Context, doctorID uuid.UUID) ([]Review, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListReviewsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// SendDayReminders publishes a reminder for every active booking on day's UTC
// calendar date and returns how many were sent.
func (s *Service) SendDayReminders(ctx context.Context, day time.Time) (int, error) {
	from, to := DayBounds(day)
	bookings, err := s.repo.ListActiveBookingsBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list active bookings: %w", err)
	}
	if s.notifier == nil {
		return 0, nil
	}

	sent := 0
	for _, b := range bookings {
		n := Notification{
			Type:          NotificationBookingReminder,
			BookingID:     b.ID,
			DoctorID:      b.DoctorID,
			PatientID:     b.PatientID,
			AppointmentAt: b.AppointmentAt,
			Comment:       deref(b.Comment),
		}
		if d, err := s.repo.GetDoctorByID(ctx, b.DoctorID); err == nil {
			n.DoctorName, n.DoctorEmail = d.Name, d.Email
		}
		if p, err := s.repo.GetPatientByID(ctx, b.PatientID); err == nil {
			n.PatientName, n.PatientEmail = p.Name, deref(p.Email)
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		err := s.notifier.Notify(sendCtx, n)
		cancel()
		if err != nil {
			s.logger.Warn("reminder not delivered",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

// dispatch delivers n in the background. Failures are logged only.
func (s *Service) dispatch(n Notification) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notification not delivered",
				zap.String("type", n.Type),
				zap.String("booking_id", n.BookingID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}
}

func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
