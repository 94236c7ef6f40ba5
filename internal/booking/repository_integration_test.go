package booking_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
)

// storeRepository is the repository surface plus the seeding helpers both stores expose.
type storeRepository interface {
	booking.Repository
	InsertDoctor(ctx context.Context, d booking.Doctor) error
	InsertPatient(ctx context.Context, p booking.Patient) error
}

// Run with TEST_POSTGRES_DSN=postgres://... go test ./internal/booking/
func TestPgRepository_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	pool, err := db.ConnectPostgres(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := db.NewMigrator(pool, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = migrator.Close() })
	require.NoError(t, migrator.Up(ctx))

	exerciseRepository(t, booking.NewPgRepository(pool))
}

// Run with TEST_MONGO_URI=mongodb://... go test ./internal/booking/
func TestMongoRepository_Integration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	client, database, err := db.ConnectMongo(ctx, uri, "booking_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := booking.NewMongoRepository(database)
	require.NoError(t, repo.EnsureIndexes(ctx))

	exerciseRepository(t, repo)
}

func exerciseRepository(t *testing.T, repo storeRepository) {
	ctx := context.Background()

	start, err := booking.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := booking.ParseTimeOfDay("12:00")
	require.NoError(t, err)

	doctor := booking.Doctor{
		ID:          uuid.New(),
		Name:        "Dr. Integration",
		Email:       uuid.NewString() + "@example.com",
		TicketPrice: 50,
		TimeSlots:   []booking.WeeklyRule{{Day: time.Monday, Start: start, End: end, SlotDurationMinutes: 30}},
	}
	require.NoError(t, repo.InsertDoctor(ctx, doctor))

	patients := make([]uuid.UUID, 8)
	for i := range patients {
		patients[i] = uuid.New()
		require.NoError(t, repo.InsertPatient(ctx, booking.Patient{ID: patients[i], Name: "Patient"}))
	}

	t.Run("doctor round trip", func(t *testing.T) {
		got, err := repo.GetDoctorByID(ctx, doctor.ID)
		require.NoError(t, err)
		assert.Equal(t, doctor.TimeSlots, got.TimeSlots)
		assert.Zero(t, got.TotalRating)
	})

	t.Run("one active booking per slot", func(t *testing.T) {
		at := time.Date(2031, 6, 2, 9, 30, 0, 0, time.UTC)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for _, pid := range patients {
			wg.Add(1)
			go func(pid uuid.UUID) {
				defer wg.Done()
				_, err := repo.InsertBooking(ctx, booking.NewBooking{
					DoctorID:      doctor.ID,
					PatientID:     pid,
					AppointmentAt: at,
					Status:        booking.StatusPending,
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
					return
				}
				assert.ErrorIs(t, err, booking.ErrSlotAlreadyBooked)
				conflicts++
			}(pid)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, len(patients)-1, conflicts)

		active, err := repo.FindActiveBooking(ctx, doctor.ID, at)
		require.NoError(t, err)
		require.NotNil(t, active)

		_, err = repo.UpdateBookingStatus(ctx, active.ID, booking.StatusPending, booking.StatusCancelled)
		require.NoError(t, err)

		rebooked, err := repo.InsertBooking(ctx, booking.NewBooking{
			DoctorID:      doctor.ID,
			PatientID:     patients[0],
			AppointmentAt: at,
			Status:        booking.StatusPending,
		})
		require.NoError(t, err, "a cancelled booking frees its slot")
		assert.NotEqual(t, active.ID, rebooked.ID)
	})

	t.Run("reviews update the doctor rating", func(t *testing.T) {
		_, err := repo.InsertReview(ctx, booking.NewReview{DoctorID: doctor.ID, PatientID: patients[1], Rating: 5, ReviewText: "great"})
		require.NoError(t, err)
		_, err = repo.InsertReview(ctx, booking.NewReview{DoctorID: doctor.ID, PatientID: patients[2], Rating: 4})
		require.NoError(t, err)

		_, err = repo.InsertReview(ctx, booking.NewReview{DoctorID: doctor.ID, PatientID: patients[1], Rating: 1})
		assert.ErrorIs(t, err, booking.ErrAlreadyReviewed)

		_, err = repo.InsertReview(ctx, booking.NewReview{DoctorID: uuid.New(), PatientID: patients[1], Rating: 3})
		assert.ErrorIs(t, err, booking.ErrDoctorNotFound)

		got, err := repo.GetDoctorByID(ctx, doctor.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.TotalRating)
		assert.Equal(t, 4.5, got.AverageRating)

		reviews, err := repo.ListReviewsByDoctor(ctx, doctor.ID)
		require.NoError(t, err)
		assert.Len(t, reviews, 2)
	})
}
