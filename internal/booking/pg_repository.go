package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	// see internal/db/migrations
	activeSlotIndex   = "bookings_active_slot_uniq"
	reviewAuthorIndex = "reviews_doctor_patient_uniq"
)

var _ Repository = (*PgRepository)(nil)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const doctorColumns = `id, name, email, phone, specialization, bio, ticket_price, time_slots, average_rating, total_rating, created_at, updated_at`

const bookingColumns = `id, doctor_id, patient_id, appointment_at, status, comment, prescription, doctor_notes, created_at, updated_at`

const reviewColumns = `id, doctor_id, patient_id, rating, review_text, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var slots []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Phone,
		&d.Specialization,
		&d.Bio,
		&d.TicketPrice,
		&slots,
		&d.AverageRating,
		&d.TotalRating,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &d.TimeSlots); err != nil {
			return nil, fmt.Errorf("decode time slots of doctor %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.PatientID,
		&b.AppointmentAt,
		&b.Status,
		&b.Comment,
		&b.Prescription,
		&b.DoctorNotes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.AppointmentAt = b.AppointmentAt.UTC()
	return &b, nil
}

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review

	err := row.Scan(
		&rv.ID,
		&rv.DoctorID,
		&rv.PatientID,
		&rv.Rating,
		&rv.ReviewText,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *PgRepository) queryBookings(ctx context.Context, sql string, args ...any) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func encodeSlots(rules []WeeklyRule) ([]byte, error) {
	if rules == nil {
		rules = []WeeklyRule{}
	}
	return json.Marshal(rules)
}

// Seeding helpers used by cmd/seed.

func (r *PgRepository) InsertDoctor(ctx context.Context, d Doctor) error {
	slots, err := encodeSlots(d.TimeSlots)
	if err != nil {
		return fmt.Errorf("encode time slots: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, phone, specialization, bio, ticket_price, time_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, now(), now())
	`, d.ID, d.Name, d.Email, d.Phone, d.Specialization, d.Bio, d.TicketPrice, string(slots))
	return err
}

func (r *PgRepository) InsertPatient(ctx context.Context, p Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, p.ID, p.Name, p.Email)
	return err
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, query string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE $1::text = ''
		   OR name ILIKE '%' || $1::text || '%'
		   OR specialization ILIKE '%' || $1::text || '%'
		ORDER BY name
	`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	slots, err := encodeSlots(upd.TimeSlots)
	if err != nil {
		return nil, fmt.Errorf("encode time slots: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET name = COALESCE($2, name),
		    phone = COALESCE($3, phone),
		    specialization = COALESCE($4, specialization),
		    bio = COALESCE($5, bio),
		    ticket_price = COALESCE($6, ticket_price),
		    time_slots = CASE WHEN $7::boolean THEN $8::jsonb ELSE time_slots END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns+`
	`, id, upd.Name, upd.Phone, upd.Specialization, upd.Bio, upd.TicketPrice, upd.ReplaceSlots, string(slots))

	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindActiveBooking(ctx context.Context, doctorID uuid.UUID, at time.Time) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND appointment_at = $2
		  AND status IN ('pending', 'confirmed')
	`, doctorID, at)
	return scanBooking(row)
}

func (r *PgRepository) ListActiveBookingsForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND appointment_at >= $2
		  AND appointment_at < $3
		ORDER BY appointment_at
	`, doctorID, from, to)
}

func (r *PgRepository) InsertBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, doctor_id, patient_id, appointment_at, status, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+bookingColumns+`
	`, id, nb.DoctorID, nb.PatientID, nb.AppointmentAt.UTC(), nb.Status, nb.Comment)

	b, err := scanBooking(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)

	b, err := scanBooking(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

func (r *PgRepository) UpdateBookingNotes(ctx context.Context, id uuid.UUID, prescription, doctorNotes *string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET prescription = COALESCE($2, prescription),
		    doctor_notes = COALESCE($3, doctor_notes),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, prescription, doctorNotes)
	return scanBooking(row)
}

func (r *PgRepository) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, excludeCancelled bool) ([]Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		  AND (NOT $2::boolean OR status <> 'cancelled')
		ORDER BY appointment_at DESC
	`, patientID, excludeCancelled)
}

func (r *PgRepository) ListBookingsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		ORDER BY appointment_at
	`, doctorID)
}

func (r *PgRepository) ListActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		  AND appointment_at >= $1
		  AND appointment_at < $2
		ORDER BY appointment_at
	`, from, to)
}

func (r *PgRepository) InsertReview(ctx context.Context, nr NewReview) (*Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// serialise rating refreshes per doctor
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, nr.DoctorID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO reviews (id, doctor_id, patient_id, rating, review_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+reviewColumns+`
	`, uuid.New(), nr.DoctorID, nr.PatientID, nr.Rating, nr.ReviewText)

	rv, err := scanReview(row)
	if err != nil {
		return nil, mapWriteError(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE doctors
		SET (average_rating, total_rating) = (
		        SELECT COALESCE(round(avg(rating)::numeric, 1), 0)::double precision, count(*)
		        FROM reviews
		        WHERE doctor_id = $1
		    ),
		    updated_at = now()
		WHERE id = $1
	`, nr.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("refresh doctor rating: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rv, nil
}

func (r *PgRepository) ListReviewsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rv)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.BookingID, ev.Payload, ev.CreatedAt)
	return err
}

// Ping is used by the readiness check.
func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case activeSlotIndex:
			return ErrSlotAlreadyBooked
		case reviewAuthorIndex:
			return ErrAlreadyReviewed
		}
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case "bookings_doctor_id_fkey", "reviews_doctor_id_fkey":
			return ErrDoctorNotFound
		case "bookings_patient_id_fkey", "reviews_patient_id_fkey":
			return ErrPatientNotFound
		}
	}
	return err
}
