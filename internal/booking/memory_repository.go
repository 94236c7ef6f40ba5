package booking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps everything in process memory. It backs
// STORE_DRIVER=memory and the package tests.
type MemoryRepository struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Patient
	bookings map[uuid.UUID]Booking
	reviews  []Review
	events   []EventLog
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:  make(map[uuid.UUID]Doctor),
		patients: make(map[uuid.UUID]Patient),
		bookings: make(map[uuid.UUID]Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddDoctor stores d, assigning an ID when it has none.
func (r *MemoryRepository) AddDoctor(d Doctor) Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := r.now()
	d.CreatedAt, d.UpdatedAt = now, now
	d.TimeSlots = append([]WeeklyRule(nil), d.TimeSlots...)
	r.doctors[d.ID] = d
	return d
}

// AddPatient stores p, assigning an ID when it has none.
func (r *MemoryRepository) AddPatient(p Patient) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
	return p
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.TimeSlots = append([]WeeklyRule(nil), d.TimeSlots...)
	return &d, nil
}

func (r *MemoryRepository) ListDoctors(_ context.Context, query string) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := strings.ToLower(query)
	out := []Doctor{}
	for _, d := range r.doctors {
		if q != "" &&
			!strings.Contains(strings.ToLower(d.Name), q) &&
			!strings.Contains(strings.ToLower(deref(d.Specialization)), q) {
			continue
		}
		d.TimeSlots = append([]WeeklyRule(nil), d.TimeSlots...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) UpdateDoctor(_ context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if upd.Name != nil {
		d.Name = *upd.Name
	}
	if upd.Phone != nil {
		d.Phone = upd.Phone
	}
	if upd.Specialization != nil {
		d.Specialization = upd.Specialization
	}
	if upd.Bio != nil {
		d.Bio = upd.Bio
	}
	if upd.TicketPrice != nil {
		d.TicketPrice = *upd.TicketPrice
	}
	if upd.ReplaceSlots {
		d.TimeSlots = append([]WeeklyRule(nil), upd.TimeSlots...)
	}
	d.UpdatedAt = r.now()
	r.doctors[id] = d
	return &d, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindActiveBooking(_ context.Context, doctorID uuid.UUID, at time.Time) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.activeAt(doctorID, at); ok {
		return &b, nil
	}
	return nil, ErrBookingNotFound
}

// activeAt must be called with mu held.
func (r *MemoryRepository) activeAt(doctorID uuid.UUID, at time.Time) (Booking, bool) {
	for _, b := range r.bookings {
		if b.DoctorID == doctorID && b.Status.Active() && b.AppointmentAt.Equal(at) {
			return b, true
		}
	}
	return Booking{}, false
}

func (r *MemoryRepository) ListActiveBookingsForDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		return b.DoctorID == doctorID && b.Status.Active() && inRange(b.AppointmentAt, from, to)
	}, true), nil
}

func (r *MemoryRepository) InsertBooking(_ context.Context, nb NewBooking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[nb.DoctorID]; !ok {
		return nil, ErrDoctorNotFound
	}
	if nb.Status.Active() {
		if _, taken := r.activeAt(nb.DoctorID, nb.AppointmentAt); taken {
			return nil, ErrSlotAlreadyBooked
		}
	}

	now := r.now()
	b := Booking{
		ID:            uuid.New(),
		DoctorID:      nb.DoctorID,
		PatientID:     nb.PatientID,
		AppointmentAt: nb.AppointmentAt.UTC(),
		Status:        nb.Status,
		Comment:       nb.Comment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.bookings[b.ID] = b
	return &b, nil
}

func (r *MemoryRepository) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	if to.Active() && !from.Active() {
		if _, taken := r.activeAt(b.DoctorID, b.AppointmentAt); taken {
			return nil, ErrSlotAlreadyBooked
		}
	}
	b.Status = to
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) UpdateBookingNotes(_ context.Context, id uuid.UUID, prescription, doctorNotes *string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if prescription != nil {
		b.Prescription = prescription
	}
	if doctorNotes != nil {
		b.DoctorNotes = doctorNotes
	}
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) ListBookingsByPatient(_ context.Context, patientID uuid.UUID, excludeCancelled bool) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		if excludeCancelled && b.Status == StatusCancelled {
			return false
		}
		return b.PatientID == patientID
	}, false), nil
}

func (r *MemoryRepository) ListBookingsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Booking, error) {
	return r.filter(func(b Booking) bool { return b.DoctorID == doctorID }, true), nil
}

func (r *MemoryRepository) ListActiveBookingsBetween(_ context.Context, from, to time.Time) ([]Booking, error) {
	return r.filter(func(b Booking) bool {
		return b.Status.Active() && inRange(b.AppointmentAt, from, to)
	}, true), nil
}

func (r *MemoryRepository) InsertReview(_ context.Context, nr NewReview) (*Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[nr.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	sum := 0
	count := 0
	for _, rv := range r.reviews {
		if rv.DoctorID != nr.DoctorID {
			continue
		}
		if rv.PatientID == nr.PatientID {
			return nil, ErrAlreadyReviewed
		}
		sum += rv.Rating
		count++
	}

	now := r.now()
	rv := Review{
		ID:         uuid.New(),
		DoctorID:   nr.DoctorID,
		PatientID:  nr.PatientID,
		Rating:     nr.Rating,
		ReviewText: nr.ReviewText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.reviews = append(r.reviews, rv)

	d.TotalRating = count + 1
	d.AverageRating = roundRating(float64(sum+rv.Rating) / float64(d.TotalRating))
	r.doctors[d.ID] = d
	return &rv, nil
}

func (r *MemoryRepository) ListReviewsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Review{}
	// appended in creation order, walk backwards for newest first
	for i := len(r.reviews) - 1; i >= 0; i-- {
		if r.reviews[i].DoctorID == doctorID {
			out = append(out, r.reviews[i])
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) filter(keep func(Booking) bool, ascending bool) []Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Booking{}
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].AppointmentAt.Before(out[j].AppointmentAt)
		}
		return out[i].AppointmentAt.After(out[j].AppointmentAt)
	})
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
