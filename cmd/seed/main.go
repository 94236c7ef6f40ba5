package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/app"
	"github.com/hackgods/doctor-appointment-booking/internal/auth"
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
)

// seeder is implemented by the persistent repositories.
type seeder interface {
	InsertDoctor(ctx context.Context, d booking.Doctor) error
	InsertPatient(ctx context.Context, p booking.Patient) error
	InsertReview(ctx context.Context, nr booking.NewReview) (*booking.Review, error)
}

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create")
	patients := flag.Int("patients", 200, "number of patients to create")
	reviews := flag.Int("reviews", 5, "maximum reviews per doctor")
	tokens := flag.Int("tokens", 3, "print dev tokens for this many seeded doctors and patients")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env).Named("seed")
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store connection error", zap.Error(err))
	}
	defer store.Close()

	target, ok := store.Repo.(seeder)
	if !ok {
		log.Fatal("store driver cannot be seeded", zap.String("store", store.Driver))
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, log); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(ctx, target, *doctors, log)
	if err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	patientIDs, err := seedPatients(ctx, target, *patients, log)
	if err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	reviewCount, err := seedReviews(ctx, target, doctorIDs, patientIDs, *reviews)
	if err != nil {
		log.Fatal("seed reviews", zap.Error(err))
	}

	tm := auth.NewManager(cfg.JWTSecret)
	printTokens(tm, booking.RoleDoctor, doctorIDs, *tokens)
	printTokens(tm, booking.RolePatient, patientIDs, *tokens)

	log.Info("seed complete",
		zap.Int("doctors", len(doctorIDs)),
		zap.Int("patients", len(patientIDs)),
		zap.Int("reviews", reviewCount),
	)
}

func seedDoctors(ctx context.Context, s seeder, count int, log *zap.Logger) ([]uuid.UUID, error) {
	log.Info("seeding doctors", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		phone := gofakeit.Phone()
		bio := fmt.Sprintf("%s specialist with %d years of practice.", spec, gofakeit.Number(2, 30))

		d := booking.Doctor{
			ID:             uuid.New(),
			Name:           "Dr. " + gofakeit.Name(),
			Email:          gofakeit.Email(),
			Phone:          &phone,
			Specialization: &spec,
			Bio:            &bio,
			TicketPrice:    float64(gofakeit.Number(20, 200)),
			TimeSlots:      weeklySchedule(),
		}
		if err := s.InsertDoctor(ctx, d); err != nil {
			return ids, fmt.Errorf("insert doctor %d: %w", i, err)
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// weeklySchedule gives a doctor a morning block on a few random weekdays.
func weeklySchedule() []booking.WeeklyRule {
	durations := []int{15, 20, 30, 45, 60}
	duration := durations[gofakeit.Number(0, len(durations)-1)]
	start := gofakeit.Number(8, 10)

	var rules []booking.WeeklyRule
	for day := time.Monday; day <= time.Friday; day++ {
		if !gofakeit.Bool() {
			continue
		}
		rules = append(rules, booking.WeeklyRule{
			Day:                 day,
			Start:               booking.TimeOfDay{Hour: start},
			End:                 booking.TimeOfDay{Hour: start + 4},
			SlotDurationMinutes: duration,
		})
	}
	if len(rules) == 0 {
		rules = append(rules, booking.WeeklyRule{
			Day:                 time.Wednesday,
			Start:               booking.TimeOfDay{Hour: 9},
			End:                 booking.TimeOfDay{Hour: 12},
			SlotDurationMinutes: duration,
		})
	}
	return rules
}

func seedPatients(ctx context.Context, s seeder, count int, log *zap.Logger) ([]uuid.UUID, error) {
	log.Info("seeding patients", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		p := booking.Patient{
			ID:    uuid.New(),
			Name:  gofakeit.Name(),
			Email: &email,
		}
		if err := s.InsertPatient(ctx, p); err != nil {
			return ids, fmt.Errorf("insert patient %d: %w", i, err)
		}
		ids = append(ids, p.ID)

		if (i+1)%500 == 0 {
			log.Info("patients seeded", zap.Int("done", i+1), zap.Int("total", count))
		}
	}
	return ids, nil
}

var reviewTexts = []string{
	"",
	"Very thorough and explained everything.",
	"Kept me waiting but the consultation was good.",
	"Friendly and quick.",
	"Would book again.",
	"Did not listen to my concerns.",
}

// seedReviews gives each doctor up to perDoctor reviews from distinct patients.
func seedReviews(ctx context.Context, s seeder, doctorIDs, patientIDs []uuid.UUID, perDoctor int) (int, error) {
	if len(patientIDs) == 0 || perDoctor <= 0 {
		return 0, nil
	}
	total := 0
	for _, doctorID := range doctorIDs {
		n := gofakeit.Number(0, perDoctor)
		if n > len(patientIDs) {
			n = len(patientIDs)
		}
		offset := gofakeit.Number(0, len(patientIDs)-1)
		for i := 0; i < n; i++ {
			_, err := s.InsertReview(ctx, booking.NewReview{
				DoctorID:   doctorID,
				PatientID:  patientIDs[(offset+i)%len(patientIDs)],
				Rating:     gofakeit.Number(booking.MinRating, booking.MaxRating),
				ReviewText: reviewTexts[gofakeit.Number(0, len(reviewTexts)-1)],
			})
			if err != nil {
				return total, fmt.Errorf("insert review for doctor %s: %w", doctorID, err)
			}
			total++
		}
	}
	return total, nil
}

func printTokens(tm *auth.Manager, role booking.Role, ids []uuid.UUID, n int) {
	for i := 0; i < n && i < len(ids); i++ {
		token, err := tm.Issue(booking.Actor{UserID: ids[i], Role: role}, 24*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token for %s: %v\n", ids[i], err)
			continue
		}
		fmt.Printf("%s %s %s\n", role, ids[i], token)
	}
}
